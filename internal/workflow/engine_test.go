package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDeliverer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (d *fakeDeliverer) Deliver(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.texts = append(d.texts, text)
	return nil
}

func (d *fakeDeliverer) delivered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type engineFixture struct {
	engine    *Engine
	store     *MemoryStore
	presenter *fakePresenter
	deliverer *fakeDeliverer
	clock     *fakeClock
}

func newEngineFixture() *engineFixture {
	fp := &fakePresenter{}
	fd := &fakeDeliverer{}
	clock := &fakeClock{at: time.Date(2026, time.March, 14, 21, 30, 0, 0, time.UTC)}
	store := NewMemoryStore()
	eng := New(Options{
		Store:     store,
		Prompts:   NewPromptManager(fp, time.Minute),
		Deliverer: fd,
		Cooldown:  1500 * time.Millisecond,
		Reviewer:  "@lead",
		Now:       clock.Now,
	})
	return &engineFixture{engine: eng, store: store, presenter: fp, deliverer: fd, clock: clock}
}

// run feeds a sequence of events with the debounce window elapsed
// between them.
func (f *engineFixture) run(t *testing.T, events ...Event) {
	t.Helper()
	ctx := context.Background()
	for i, ev := range events {
		var err error
		switch {
		case ev.OptionID == "begin":
			err = f.engine.Begin(ctx, ev)
		case ev.OptionID != "":
			err = f.engine.Select(ctx, ev)
		default:
			err = f.engine.Input(ctx, ev)
		}
		if err != nil {
			t.Fatalf("event %d (%+v): %v", i, ev, err)
		}
		f.clock.Advance(2 * time.Second)
	}
}

func (f *engineFixture) step(t *testing.T, conversationID int64) Step {
	t.Helper()
	sess, err := f.store.Get(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return sess.Step
}

func TestEngineConfirmationFlow(t *testing.T) {
	f := newEngineFixture()
	f.run(t,
		Event{ConversationID: 10, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 10, Actor: "@dana", OptionID: "9-21"},
		Event{ConversationID: 10, Actor: "@dana", OptionID: TypeConfirmation},
	)

	delivered := f.deliverer.delivered()
	if len(delivered) != 1 {
		t.Fatalf("delivered %d reports, expected 1", len(delivered))
	}
	want := "✅ Day shift report — 14.03.2026\n" +
		"Shift passed without incidents.\n" +
		"Signed: @dana (shift 9-21)"
	if delivered[0] != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", delivered[0], want)
	}
	if step := f.step(t, 10); step != StepIdle {
		t.Fatalf("step after finalize = %s", step)
	}
	last, ok := f.presenter.lastShown()
	if !ok || last.text != reportSentNotice {
		t.Fatalf("last prompt = %+v, expected delivery notice", last)
	}
}

func TestEngineEscalationAllClearFlow(t *testing.T) {
	f := newEngineFixture()
	f.run(t,
		Event{ConversationID: 11, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 11, Actor: "@dana", OptionID: "10-22"},
		Event{ConversationID: 11, Actor: "@dana", OptionID: TypeEscalation},
		Event{ConversationID: 11, Actor: "@dana", OptionID: SubAllClear},
	)

	delivered := f.deliverer.delivered()
	if len(delivered) != 1 {
		t.Fatalf("delivered %d reports, expected 1", len(delivered))
	}
	want := "✅ Night shift report — 14.03.2026\n" +
		"Shift passed without incidents.\n" +
		"Signed: @dana (shift 10-22)"
	if delivered[0] != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", delivered[0], want)
	}
}

func TestEngineEscalationWithBodyFlow(t *testing.T) {
	f := newEngineFixture()
	f.run(t,
		Event{ConversationID: 12, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 12, Actor: "@dana", OptionID: "10-22"},
		Event{ConversationID: 12, Actor: "@dana", OptionID: TypeEscalation},
		Event{ConversationID: 12, Actor: "@dana", OptionID: SubNeedsAttention},
		Event{ConversationID: 12, Actor: "@dana", Text: "Jira ticket 42", Message: MessageRef{ChatID: 12, MessageID: 77}},
	)

	delivered := f.deliverer.delivered()
	if len(delivered) != 1 {
		t.Fatalf("delivered %d reports, expected 1", len(delivered))
	}
	want := "⚠️ Night shift report — 14.03.2026\n" +
		"Attention required on shift.\n" +
		"Jira ticket 42\n" +
		"Signed: @dana (shift 10-22)"
	if delivered[0] != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", delivered[0], want)
	}

	// The operator's text message is cleaned up after the send.
	refs := f.presenter.removedRefs()
	found := false
	for _, r := range refs {
		if r == (MessageRef{ChatID: 12, MessageID: 77}) {
			found = true
		}
	}
	if !found {
		t.Fatalf("removed = %v, expected operator message cleanup", refs)
	}
}

func TestEngineSummaryFlow(t *testing.T) {
	f := newEngineFixture()
	f.run(t,
		Event{ConversationID: 13, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 13, Actor: "@dana", OptionID: "9-21"},
		Event{ConversationID: 13, Actor: "@dana", OptionID: TypeSummary},
		Event{ConversationID: 13, Actor: "@dana", Text: "Quiet day overall."},
	)

	delivered := f.deliverer.delivered()
	if len(delivered) != 1 {
		t.Fatalf("delivered %d reports, expected 1", len(delivered))
	}
	want := "📋 Shift summary — 14.03.2026\n" +
		"Quiet day overall.\n" +
		"Reviewed by: @lead"
	if delivered[0] != want {
		t.Fatalf("report:\n%s\nexpected:\n%s", delivered[0], want)
	}
}

func TestEngineStaleOptionIgnored(t *testing.T) {
	f := newEngineFixture()
	f.run(t, Event{ConversationID: 14, OptionID: "begin"})

	sentBefore, replacedBefore, _ := f.presenter.counts()
	if err := f.engine.Select(context.Background(), Event{ConversationID: 14, OptionID: TypeConfirmation}); err != nil {
		t.Fatalf("select: %v", err)
	}

	if step := f.step(t, 14); step != StepChoosingShift {
		t.Fatalf("step = %s, stale option must not advance", step)
	}
	sent, replaced, _ := f.presenter.counts()
	if sent != sentBefore || replaced != replacedBefore {
		t.Fatal("stale option re-rendered the prompt")
	}
	if len(f.deliverer.delivered()) != 0 {
		t.Fatal("stale option produced a report")
	}
}

func TestEngineDebounceRejectsRapidTaps(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	f.run(t, Event{ConversationID: 15, Actor: "@dana", OptionID: "begin"})

	if err := f.engine.Select(ctx, Event{ConversationID: 15, Actor: "@dana", OptionID: "9-21"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	// Second tap lands inside the cooldown window.
	f.clock.Advance(200 * time.Millisecond)
	if err := f.engine.Select(ctx, Event{ConversationID: 15, Actor: "@dana", OptionID: TypeConfirmation}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if step := f.step(t, 15); step != StepChoosingType {
		t.Fatalf("step = %s, debounced tap must not advance", step)
	}
	if len(f.deliverer.delivered()) != 0 {
		t.Fatal("debounced tap produced a report")
	}

	// The same tap is accepted once the window elapses.
	f.clock.Advance(2 * time.Second)
	if err := f.engine.Select(ctx, Event{ConversationID: 15, Actor: "@dana", OptionID: TypeConfirmation}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := len(f.deliverer.delivered()); got != 1 {
		t.Fatalf("delivered %d reports, expected 1", got)
	}
}

func TestEngineBeginSupersedesMidFlow(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	f.run(t,
		Event{ConversationID: 16, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 16, Actor: "@dana", OptionID: "9-21"},
	)

	// Begin wins immediately, debounce or not.
	if err := f.engine.Begin(ctx, Event{ConversationID: 16, Actor: "@dana"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	sess, err := f.store.Get(ctx, 16)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Step != StepChoosingShift {
		t.Fatalf("step = %s, expected restart at shift menu", sess.Step)
	}
	if sess.Answers[FieldShift] != "" {
		t.Fatalf("shift answer %q survived the restart", sess.Answers[FieldShift])
	}
}

func TestEngineTextIgnoredOutsideFreeTextStep(t *testing.T) {
	f := newEngineFixture()
	f.run(t, Event{ConversationID: 17, OptionID: "begin"})

	if err := f.engine.Input(context.Background(), Event{ConversationID: 17, Text: "hello"}); err != nil {
		t.Fatalf("input: %v", err)
	}
	if step := f.step(t, 17); step != StepChoosingShift {
		t.Fatalf("step = %s, text must not advance a menu step", step)
	}
	if len(f.deliverer.delivered()) != 0 {
		t.Fatal("text outside the input step produced a report")
	}
}

func TestEngineBlankTextIgnored(t *testing.T) {
	f := newEngineFixture()
	f.run(t,
		Event{ConversationID: 18, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 18, Actor: "@dana", OptionID: "9-21"},
		Event{ConversationID: 18, Actor: "@dana", OptionID: TypeSummary},
	)

	if err := f.engine.Input(context.Background(), Event{ConversationID: 18, Text: "   "}); err != nil {
		t.Fatalf("input: %v", err)
	}
	if step := f.step(t, 18); step != StepAwaitingFreeText {
		t.Fatalf("step = %s, blank text must keep waiting", step)
	}
}

func TestEngineDeliveryFailureStillResets(t *testing.T) {
	f := newEngineFixture()
	f.deliverer.err = errors.New("channel unreachable")
	f.run(t,
		Event{ConversationID: 19, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 19, Actor: "@dana", OptionID: "9-21"},
		Event{ConversationID: 19, Actor: "@dana", OptionID: TypeConfirmation},
	)

	if step := f.step(t, 19); step != StepIdle {
		t.Fatalf("step = %s, failed delivery must still reset", step)
	}
	last, ok := f.presenter.lastShown()
	if !ok || last.text != reportFailedNotice {
		t.Fatalf("last prompt = %+v, expected failure notice", last)
	}
	if f.engine.Active(context.Background(), 19) {
		t.Fatal("conversation still active after failed delivery")
	}
}

func TestEngineCancel(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	f.run(t,
		Event{ConversationID: 20, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 20, Actor: "@dana", OptionID: "9-21"},
	)

	if err := f.engine.Cancel(ctx, Event{ConversationID: 20}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.engine.Active(ctx, 20) {
		t.Fatal("conversation still active after cancel")
	}
	last, ok := f.presenter.lastShown()
	if !ok || last.text != cancelledNotice {
		t.Fatalf("last prompt = %+v, expected cancel notice", last)
	}
}

func TestEngineRestartClearsPrompt(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	f.run(t, Event{ConversationID: 21, OptionID: "begin"})

	if err := f.engine.Restart(ctx, Event{ConversationID: 21}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if f.engine.Active(ctx, 21) {
		t.Fatal("conversation still active after restart")
	}
	if _, _, removed := f.presenter.counts(); removed != 1 {
		t.Fatalf("removed = %d, expected the live prompt gone", removed)
	}
}

func TestEngineActive(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	if f.engine.Active(ctx, 22) {
		t.Fatal("fresh conversation reported active")
	}
	f.run(t, Event{ConversationID: 22, OptionID: "begin"})
	if !f.engine.Active(ctx, 22) {
		t.Fatal("begun conversation reported idle")
	}
}

func TestEngineKeepsSingleLivePrompt(t *testing.T) {
	f := newEngineFixture()
	f.run(t,
		Event{ConversationID: 23, Actor: "@dana", OptionID: "begin"},
		Event{ConversationID: 23, Actor: "@dana", OptionID: "10-22"},
		Event{ConversationID: 23, Actor: "@dana", OptionID: TypeEscalation},
		Event{ConversationID: 23, Actor: "@dana", OptionID: SubNeedsAttention},
	)

	// Every step after the first edits the same message in place.
	sent, replaced, _ := f.presenter.counts()
	if sent != 1 {
		t.Fatalf("sends = %d, expected a single prompt message", sent)
	}
	if replaced != 3 {
		t.Fatalf("replaces = %d, expected one per step", replaced)
	}
}
