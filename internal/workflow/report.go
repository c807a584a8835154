package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Report kinds derived from a completed answer set.
const (
	KindConfirmation = "confirmation"
	KindEscalation   = "escalation"
	KindSummary      = "summary"
)

const (
	dayHeader     = "Day shift report"
	nightHeader   = "Night shift report"
	summaryHeader = "Shift summary"

	reportDateLayout = "02.01.2006"
)

// errIncompleteAnswers marks a finalize call with a hole in the answer
// set. The state machine guarantees completeness before the terminal
// transition, so hitting this is a bug, not user input to handle.
var errIncompleteAnswers = errors.New("workflow: finalize called with incomplete answers")

// ReportKind classifies a completed answer set.
func ReportKind(a Answers) string {
	switch {
	case a[FieldType] == TypeSummary:
		return KindSummary
	case a[FieldSubStatus] == SubNeedsAttention:
		return KindEscalation
	default:
		return KindConfirmation
	}
}

// headerLabel derives the report header from the chosen shift code.
func headerLabel(shift string) string {
	if nightShifts[shift] {
		return nightHeader
	}
	return dayHeader
}

// RenderReport renders the terminal answer set into the report text.
// The output is a pure function of the answers, the timestamp and the
// reviewer attribution; replaying the same inputs yields identical text.
func RenderReport(a Answers, at time.Time, reviewer string) (string, error) {
	kind := ReportKind(a)
	date := at.Format(reportDateLayout)

	var b strings.Builder
	switch kind {
	case KindSummary:
		if a[FieldBody] == "" {
			return "", errIncompleteAnswers
		}
		fmt.Fprintf(&b, "📋 %s — %s\n", summaryHeader, date)
		b.WriteString(a[FieldBody])
		b.WriteString("\n")
		fmt.Fprintf(&b, "Reviewed by: %s", reviewer)

	case KindEscalation:
		if a[FieldShift] == "" || a[FieldOperator] == "" || a[FieldBody] == "" {
			return "", errIncompleteAnswers
		}
		fmt.Fprintf(&b, "⚠️ %s — %s\n", headerLabel(a[FieldShift]), date)
		b.WriteString("Attention required on shift.\n")
		b.WriteString(a[FieldBody])
		b.WriteString("\n")
		fmt.Fprintf(&b, "Signed: %s (shift %s)", a[FieldOperator], a[FieldShift])

	default:
		if a[FieldShift] == "" || a[FieldOperator] == "" {
			return "", errIncompleteAnswers
		}
		fmt.Fprintf(&b, "✅ %s — %s\n", headerLabel(a[FieldShift]), date)
		b.WriteString("Shift passed without incidents.\n")
		fmt.Fprintf(&b, "Signed: %s (shift %s)", a[FieldOperator], a[FieldShift])
	}

	return b.String(), nil
}
