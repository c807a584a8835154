package workflow

import "fmt"

// Step identifies a position in the guided dialog graph.
type Step string

const (
	// StepIdle indicates there is no active dialog with the operator.
	StepIdle Step = "idle"
	// StepChoosingShift asks which duty shift the report is about.
	StepChoosingShift Step = "choosing_shift"
	// StepChoosingType asks which kind of report to file.
	StepChoosingType Step = "choosing_type"
	// StepChoosingSubStatus refines an escalation report.
	StepChoosingSubStatus Step = "choosing_substatus"
	// StepAwaitingFreeText waits for the operator to type the report body.
	StepAwaitingFreeText Step = "awaiting_text"
	// StepCompleted is virtual: reaching it finalizes the report and the
	// session is reset to StepIdle, so it is never stored.
	StepCompleted Step = "completed"
)

// Answer field names accumulated over a dialog.
const (
	FieldShift     = "shift"
	FieldType      = "report_type"
	FieldSubStatus = "substatus"
	FieldBody      = "body"
	FieldOperator  = "operator"
)

// Option identifiers presented by the dialog steps.
const (
	TypeConfirmation = "confirmation"
	TypeEscalation   = "escalation"
	TypeSummary      = "summary"

	SubAllClear       = "all-clear"
	SubNeedsAttention = "needs-attention"
)

// ShiftCodes lists the selectable duty shifts in display order.
var ShiftCodes = []string{"8-20", "9-21", "10-22", "11-23"}

// nightShifts marks the shift codes whose reports carry the night header.
var nightShifts = map[string]bool{
	"10-22": true,
	"11-23": true,
}

// Option is a single selectable menu entry.
type Option struct {
	ID    string
	Label string
}

// stepSpec declares one node of the dialog graph: how to render it and
// where each option leads. A nil options function means the step expects
// free text; its single outgoing edge is Terminal.
type stepSpec struct {
	prompt  func(a Answers) string
	options func(a Answers) []Option
	next    map[string]Step
}

var stepTable = map[Step]stepSpec{
	StepChoosingShift: {
		prompt: func(Answers) string { return "Which shift are you reporting for?" },
		options: func(Answers) []Option {
			opts := make([]Option, 0, len(ShiftCodes))
			for _, code := range ShiftCodes {
				opts = append(opts, Option{ID: code, Label: "Shift " + code})
			}
			return opts
		},
		next: map[string]Step{
			"8-20":  StepChoosingType,
			"9-21":  StepChoosingType,
			"10-22": StepChoosingType,
			"11-23": StepChoosingType,
		},
	},
	StepChoosingType: {
		prompt: func(a Answers) string {
			return fmt.Sprintf("Shift %s. What would you like to file?", a[FieldShift])
		},
		options: func(Answers) []Option {
			return []Option{
				{ID: TypeConfirmation, Label: "✅ Shift confirmation"},
				{ID: TypeEscalation, Label: "⚠️ Incident"},
				{ID: TypeSummary, Label: "📋 Shift summary"},
			}
		},
		next: map[string]Step{
			TypeConfirmation: StepCompleted,
			TypeEscalation:   StepChoosingSubStatus,
			TypeSummary:      StepAwaitingFreeText,
		},
	},
	StepChoosingSubStatus: {
		prompt: func(Answers) string { return "How does the shift stand now?" },
		options: func(Answers) []Option {
			return []Option{
				{ID: SubAllClear, Label: "All clear"},
				{ID: SubNeedsAttention, Label: "Needs attention"},
			}
		},
		next: map[string]Step{
			SubAllClear:       StepCompleted,
			SubNeedsAttention: StepAwaitingFreeText,
		},
	},
	StepAwaitingFreeText: {
		prompt: func(a Answers) string {
			if a[FieldType] == TypeSummary {
				return "Type the shift summary as a single message."
			}
			return "Describe the issue as a single message."
		},
	},
}

// Render maps a step and the accumulated answers to its prompt text and
// option catalog. It is pure: same inputs always yield the same outputs.
// Free-text steps return a nil catalog.
func Render(step Step, a Answers) (string, []Option) {
	spec, ok := stepTable[step]
	if !ok {
		return "", nil
	}
	var opts []Option
	if spec.options != nil {
		opts = spec.options(a)
	}
	return spec.prompt(a), opts
}

// transition resolves the edge taken from step by selecting optionID.
// The second return is false when the option does not belong to the
// step's catalog, which callers treat as a stale menu tap.
func transition(step Step, optionID string) (Step, bool) {
	spec, ok := stepTable[step]
	if !ok || spec.next == nil {
		return step, false
	}
	next, ok := spec.next[optionID]
	return next, ok
}

// answerField returns the answer key a given step collects.
func answerField(step Step) string {
	switch step {
	case StepChoosingShift:
		return FieldShift
	case StepChoosingType:
		return FieldType
	case StepChoosingSubStatus:
		return FieldSubStatus
	case StepAwaitingFreeText:
		return FieldBody
	}
	return ""
}
