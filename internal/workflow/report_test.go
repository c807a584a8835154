package workflow

import (
	"errors"
	"testing"
	"time"
)

var reportStamp = time.Date(2026, time.March, 14, 21, 30, 0, 0, time.UTC)

func TestRenderReportConfirmationDay(t *testing.T) {
	a := Answers{
		FieldShift:    "9-21",
		FieldType:     TypeConfirmation,
		FieldOperator: "@dana",
	}
	got, err := RenderReport(a, reportStamp, "@lead")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "✅ Day shift report — 14.03.2026\n" +
		"Shift passed without incidents.\n" +
		"Signed: @dana (shift 9-21)"
	if got != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", got, want)
	}
}

func TestRenderReportConfirmationNightHeader(t *testing.T) {
	a := Answers{
		FieldShift:    "11-23",
		FieldType:     TypeConfirmation,
		FieldOperator: "@dana",
	}
	got, err := RenderReport(a, reportStamp, "@lead")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "✅ Night shift report — 14.03.2026\n" +
		"Shift passed without incidents.\n" +
		"Signed: @dana (shift 11-23)"
	if got != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", got, want)
	}
}

func TestRenderReportAllClearReadsAsConfirmation(t *testing.T) {
	a := Answers{
		FieldShift:     "8-20",
		FieldType:      TypeEscalation,
		FieldSubStatus: SubAllClear,
		FieldOperator:  "@dana",
	}
	if kind := ReportKind(a); kind != KindConfirmation {
		t.Fatalf("kind = %s, expected %s", kind, KindConfirmation)
	}
	got, err := RenderReport(a, reportStamp, "@lead")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "✅ Day shift report — 14.03.2026\n" +
		"Shift passed without incidents.\n" +
		"Signed: @dana (shift 8-20)"
	if got != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", got, want)
	}
}

func TestRenderReportEscalation(t *testing.T) {
	a := Answers{
		FieldShift:     "10-22",
		FieldType:      TypeEscalation,
		FieldSubStatus: SubNeedsAttention,
		FieldBody:      "Jira ticket 42",
		FieldOperator:  "@dana",
	}
	got, err := RenderReport(a, reportStamp, "@lead")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "⚠️ Night shift report — 14.03.2026\n" +
		"Attention required on shift.\n" +
		"Jira ticket 42\n" +
		"Signed: @dana (shift 10-22)"
	if got != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", got, want)
	}
}

func TestRenderReportSummary(t *testing.T) {
	a := Answers{
		FieldShift:    "9-21",
		FieldType:     TypeSummary,
		FieldBody:     "Quiet day overall.",
		FieldOperator: "@dana",
	}
	got, err := RenderReport(a, reportStamp, "@lead")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "📋 Shift summary — 14.03.2026\n" +
		"Quiet day overall.\n" +
		"Reviewed by: @lead"
	if got != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", got, want)
	}
}

func TestRenderReportIsDeterministic(t *testing.T) {
	a := Answers{
		FieldShift:     "10-22",
		FieldType:      TypeEscalation,
		FieldSubStatus: SubNeedsAttention,
		FieldBody:      "Router flapping",
		FieldOperator:  "@sam",
	}
	first, err := RenderReport(a, reportStamp, "@lead")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := RenderReport(a, reportStamp, "@lead")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if first != second {
		t.Fatalf("renders differ:\n%s\nvs\n%s", first, second)
	}
}

func TestRenderReportIncompleteAnswers(t *testing.T) {
	cases := []struct {
		name string
		a    Answers
	}{
		{"confirmation without operator", Answers{FieldShift: "9-21", FieldType: TypeConfirmation}},
		{"confirmation without shift", Answers{FieldType: TypeConfirmation, FieldOperator: "@dana"}},
		{"escalation without body", Answers{
			FieldShift: "9-21", FieldType: TypeEscalation,
			FieldSubStatus: SubNeedsAttention, FieldOperator: "@dana",
		}},
		{"summary without body", Answers{FieldShift: "9-21", FieldType: TypeSummary, FieldOperator: "@dana"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := RenderReport(tc.a, reportStamp, "@lead"); !errors.Is(err, errIncompleteAnswers) {
				t.Fatalf("err = %v, expected incomplete answers", err)
			}
		})
	}
}
