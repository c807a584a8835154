package bot

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/dutybot/internal/workflow"
)

func TestOptionMarkupLayout(t *testing.T) {
	markup := optionMarkup([]workflow.Option{
		{ID: "8-20", Label: "Shift 8-20"},
		{ID: "9-21", Label: "Shift 9-21"},
		{ID: "10-22", Label: "Shift 10-22"},
		{ID: "11-23", Label: "Shift 11-23"},
	})
	if markup == nil {
		t.Fatal("expected markup")
	}
	// Two options per row plus a trailing cancel row.
	rows := markup.InlineKeyboard
	if len(rows) != 3 {
		t.Fatalf("rows = %d, expected 3", len(rows))
	}
	if len(rows[0]) != 2 || len(rows[1]) != 2 || len(rows[2]) != 1 {
		t.Fatalf("row sizes = %d/%d/%d", len(rows[0]), len(rows[1]), len(rows[2]))
	}
	if rows[2][0].Text != cancelButtonLabel {
		t.Fatalf("last row = %q, expected cancel button", rows[2][0].Text)
	}
}

func TestOptionMarkupEmpty(t *testing.T) {
	if markup := optionMarkup(nil); markup != nil {
		t.Fatalf("expected nil markup, got %+v", markup)
	}
}

func TestOperatorName(t *testing.T) {
	cases := []struct {
		name string
		user *tele.User
		want string
	}{
		{"nil user", nil, ""},
		{"username", &tele.User{Username: "dana", FirstName: "Dana"}, "@dana"},
		{"first name only", &tele.User{FirstName: "Dana"}, "Dana"},
		{"full name", &tele.User{FirstName: "Dana", LastName: "K"}, "Dana K"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := operatorName(tc.user); got != tc.want {
				t.Fatalf("operatorName = %q, expected %q", got, tc.want)
			}
		})
	}
}

func TestIsMessageGone(t *testing.T) {
	if isMessageGone(nil) {
		t.Fatal("nil error reported as gone")
	}
	err := tele.NewError(400, "Bad Request: message to delete not found")
	if !isMessageGone(err) {
		t.Fatal("delete-not-found error not detected")
	}
}
