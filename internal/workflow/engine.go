package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/m3rciful/dutybot/core/logger"
	"log/slog"
)

// Deliverer posts a finalized report to the fixed report destination.
// Delivery is at-most-once: a failure is the collaborator's to log, the
// session is reset regardless and the report is never re-sent.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// Event is a single inbound dialog event: a menu selection, a free-text
// message, or a begin/cancel trigger. Message, when set, is the handle
// of the operator's own message that produced the event; it is removed
// best-effort after processing.
type Event struct {
	ConversationID int64
	Actor          string
	OptionID       string
	Text           string
	Message        MessageRef
}

// Options configures an Engine.
type Options struct {
	Store     Store
	Prompts   *PromptManager
	Deliverer Deliverer
	// Cooldown is the debounce window between accepted inputs.
	Cooldown time.Duration
	// Reviewer is the fixed attribution on summary reports.
	Reviewer string
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

const (
	defaultCooldown = 1500 * time.Millisecond

	reportSentNotice   = "Report delivered ✅"
	reportFailedNotice = "Report could not be delivered. Please start over."
	cancelledNotice    = "Report cancelled."
)

// Engine drives the guided reporting dialog: it validates inbound events
// against the current step, applies transitions under the session's
// critical section, renders the next menu and finalizes completed
// dialogs into delivered reports.
type Engine struct {
	store    Store
	prompts  *PromptManager
	deliver  Deliverer
	cooldown time.Duration
	reviewer string
	now      func() time.Time
}

// New assembles an Engine.
func New(opts Options) *Engine {
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:    opts.Store,
		prompts:  opts.Prompts,
		deliver:  opts.Deliverer,
		cooldown: cooldown,
		reviewer: opts.Reviewer,
		now:      now,
	}
}

// outcome carries the decision made inside the session critical section
// out to the presentation phase.
type outcome struct {
	ignored  bool
	reason   string
	finalize bool
	answers  Answers
	step     Step
	prompt   string
	options  []Option
}

// Begin starts (or supersedes) a dialog: the session is reset from
// whatever state it was in and the first menu is shown. Begin bypasses
// the debounce guard because it always wins.
func (e *Engine) Begin(ctx context.Context, ev Event) error {
	_, err := e.store.Update(ctx, ev.ConversationID, func(s *Session) error {
		*s = newSession()
		s.Step = StepChoosingShift
		if ev.Actor != "" {
			s.Answers[FieldOperator] = ev.Actor
		}
		return nil
	})
	if err != nil {
		return err
	}

	prompt, options := Render(StepChoosingShift, nil)
	e.prompts.Show(ctx, ev.ConversationID, prompt, options)
	e.prompts.Discard(ctx, ev.Message)

	logger.Debug(ctx, "workflow", "dialog.begin",
		slog.String("status", "ok"),
		slog.Int64("chat_id", ev.ConversationID),
		slog.String("step", string(StepChoosingShift)),
	)
	return nil
}

// Cancel abandons the dialog in place: the session is reset and the live
// menu is replaced with a short self-destructing notice.
func (e *Engine) Cancel(ctx context.Context, ev Event) error {
	if err := e.store.Reset(ctx, ev.ConversationID); err != nil {
		return err
	}
	e.prompts.Show(ctx, ev.ConversationID, cancelledNotice, nil)
	logger.Debug(ctx, "workflow", "dialog.cancel",
		slog.String("status", "cancelled"),
		slog.Int64("chat_id", ev.ConversationID),
	)
	return nil
}

// Restart wipes the dialog entirely, removing the live prompt as well.
// The process-level restart mechanism, if any, belongs to the caller.
func (e *Engine) Restart(ctx context.Context, ev Event) error {
	if err := e.store.Reset(ctx, ev.ConversationID); err != nil {
		return err
	}
	e.prompts.Clear(ctx, ev.ConversationID)
	logger.Info(ctx, "workflow", "dialog.restart",
		slog.String("status", "ok"),
		slog.Int64("chat_id", ev.ConversationID),
	)
	return nil
}

// Select feeds a menu selection into the dialog. Selections that do not
// match the current step's catalog, and selections arriving inside the
// debounce window, are ignored with no observable effect: that is how a
// tap on a stale, expired menu behaves.
func (e *Engine) Select(ctx context.Context, ev Event) error {
	out, err := e.advance(ctx, ev.ConversationID, func(s *Session, out *outcome) {
		next, ok := transition(s.Step, ev.OptionID)
		if !ok {
			out.ignored, out.reason = true, "no_match"
			return
		}
		if field := answerField(s.Step); field != "" {
			s.Answers[field] = ev.OptionID
		}
		if ev.Actor != "" {
			s.Answers[FieldOperator] = ev.Actor
		}
		e.settle(s, next, out)
	})
	if err != nil {
		return err
	}
	return e.present(ctx, ev, out, slog.String("option", ev.OptionID))
}

// Input feeds a free-text message into the dialog. Only the terminal
// input step consumes text; anything else ignores it.
func (e *Engine) Input(ctx context.Context, ev Event) error {
	out, err := e.advance(ctx, ev.ConversationID, func(s *Session, out *outcome) {
		if s.Step != StepAwaitingFreeText || strings.TrimSpace(ev.Text) == "" {
			out.ignored, out.reason = true, "no_match"
			return
		}
		s.Answers[FieldBody] = ev.Text
		if ev.Actor != "" {
			s.Answers[FieldOperator] = ev.Actor
		}
		e.settle(s, StepCompleted, out)
	})
	if err != nil {
		return err
	}
	return e.present(ctx, ev, out)
}

// Active reports whether the conversation has a dialog in flight.
func (e *Engine) Active(ctx context.Context, conversationID int64) bool {
	sess, err := e.store.Get(ctx, conversationID)
	if err != nil {
		return false
	}
	return sess.Step != StepIdle
}

// advance runs the debounce check and the supplied transition logic in
// one critical section, so two near-simultaneous events cannot both pass
// the check before either records its acceptance.
func (e *Engine) advance(ctx context.Context, conversationID int64, fn func(*Session, *outcome)) (outcome, error) {
	var out outcome
	_, err := e.store.Update(ctx, conversationID, func(s *Session) error {
		now := e.now()
		if !s.LastAcceptedAt.IsZero() && now.Sub(s.LastAcceptedAt) < e.cooldown {
			out.ignored, out.reason = true, "debounce"
			return nil
		}
		before := s.LastAcceptedAt
		s.LastAcceptedAt = now
		fn(s, &out)
		if out.ignored {
			// Non-matching input is not an accepted event.
			s.LastAcceptedAt = before
		}
		return nil
	})
	return out, err
}

// settle applies the resolved edge: either records the next step and its
// rendering, or, on the terminal edge, snapshots the answers and resets
// the session within the same critical section so the report can never
// be finalized twice.
func (e *Engine) settle(s *Session, next Step, out *outcome) {
	if next == StepCompleted {
		out.finalize = true
		out.answers = s.Answers.clone()
		*s = newSession()
		return
	}
	s.Step = next
	out.step = next
	out.prompt, out.options = Render(next, s.Answers)
}

// present performs the post-transition effects outside the store lock.
func (e *Engine) present(ctx context.Context, ev Event, out outcome, extra ...slog.Attr) error {
	if out.ignored {
		logger.Debug(ctx, "workflow", "event.ignored",
			append([]slog.Attr{
				slog.String("status", "ignored"),
				slog.Int64("chat_id", ev.ConversationID),
				slog.String("cause", out.reason),
			}, extra...)...,
		)
		return nil
	}
	if out.finalize {
		return e.finalize(ctx, ev, out.answers)
	}

	e.prompts.Show(ctx, ev.ConversationID, out.prompt, out.options)
	e.prompts.Discard(ctx, ev.Message)
	logger.Debug(ctx, "workflow", "step.advanced",
		append([]slog.Attr{
			slog.String("status", "ok"),
			slog.Int64("chat_id", ev.ConversationID),
			slog.String("step", string(out.step)),
		}, extra...)...,
	)
	return nil
}

// finalize renders the completed answer set and hands it to the delivery
// sink exactly once. Delivery failure does not resurrect the session;
// re-running the short dialog is cheaper and safer than a retry path.
// Cleanup of the operator's trigger message happens after the send.
func (e *Engine) finalize(ctx context.Context, ev Event, answers Answers) error {
	text, err := RenderReport(answers, e.now(), e.reviewer)
	if err != nil {
		logger.Error(ctx, "report", "finalize.invalid",
			slog.String("status", "fail"),
			slog.Int64("chat_id", ev.ConversationID),
			slog.String("err", err.Error()),
		)
		return err
	}

	kind := ReportKind(answers)
	notice := reportSentNotice
	if err := e.deliver.Deliver(ctx, text); err != nil {
		notice = reportFailedNotice
		logger.Error(ctx, "report", "deliver.failed",
			slog.String("status", "fail"),
			slog.Int64("chat_id", ev.ConversationID),
			slog.String("report_kind", kind),
			slog.String("err", err.Error()),
		)
	} else {
		logger.Info(ctx, "report", "deliver.ok",
			slog.String("status", "ok"),
			slog.Int64("chat_id", ev.ConversationID),
			slog.String("report_kind", kind),
			slog.String("shift", answers[FieldShift]),
		)
	}

	// The session was already re-initialized inside the critical section;
	// this clears any backing row as well.
	if err := e.store.Reset(ctx, ev.ConversationID); err != nil {
		return err
	}

	e.prompts.Show(ctx, ev.ConversationID, notice, nil)
	e.prompts.Discard(ctx, ev.Message)
	return nil
}
