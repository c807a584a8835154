package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m3rciful/dutybot/core/logger"
	"log/slog"
)

// MessageRef is an opaque handle to a displayed message. The zero value
// means "absent".
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the handle refers to nothing.
func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// ErrMessageNotFound is returned by Presenter implementations when the
// target message is already gone. Callers here treat it as success.
var ErrMessageNotFound = errors.New("workflow: message not found")

// Presenter is the outbound presentation sink the dialog renders through.
// Send and Replace are synchronous because the manager needs the handle;
// Remove may complete asynchronously and is always best-effort.
type Presenter interface {
	Send(ctx context.Context, chatID int64, text string, options []Option) (MessageRef, error)
	Replace(ctx context.Context, ref MessageRef, text string, options []Option) (MessageRef, error)
	Remove(ctx context.Context, ref MessageRef) error
}

type pendingPrompt struct {
	ref   MessageRef
	timer *time.Timer
}

// PromptManager guarantees at most one live menu per conversation and
// self-destructs stale ones. Showing a prompt replaces the previous one;
// every shown prompt schedules its own deletion after the TTL unless it
// is superseded first. Late timer fires against an already-removed
// message are harmless no-ops.
type PromptManager struct {
	mu        sync.Mutex
	presenter Presenter
	ttl       time.Duration
	live      map[int64]*pendingPrompt
}

// NewPromptManager builds a manager over the given presenter.
func NewPromptManager(p Presenter, ttl time.Duration) *PromptManager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &PromptManager{
		presenter: p,
		ttl:       ttl,
		live:      make(map[int64]*pendingPrompt),
	}
}

// Show displays text (with an optional option keyboard) as the
// conversation's live prompt, replacing any previous one. Presentation
// failures are logged and swallowed: the dialog state stays
// authoritative even when its visible prompt is stale.
func (m *PromptManager) Show(ctx context.Context, conversationID int64, text string, options []Option) {
	m.mu.Lock()
	prev := m.live[conversationID]
	delete(m.live, conversationID)
	m.mu.Unlock()

	var (
		ref MessageRef
		err error
	)
	if prev != nil {
		prev.timer.Stop()
		ref, err = m.presenter.Replace(ctx, prev.ref, text, options)
		if err != nil {
			// Edit can fail when the old menu already expired; fall back
			// to a fresh message.
			m.discard(ctx, prev.ref)
			ref, err = m.presenter.Send(ctx, conversationID, text, options)
		}
	} else {
		ref, err = m.presenter.Send(ctx, conversationID, text, options)
	}
	if err != nil {
		logger.Warn(ctx, "workflow", "prompt.show_failed",
			slog.String("status", "fail"),
			slog.Int64("chat_id", conversationID),
			slog.String("err", err.Error()),
		)
		return
	}

	p := &pendingPrompt{ref: ref}
	p.timer = time.AfterFunc(m.ttl, func() { m.expire(conversationID, ref) })

	m.mu.Lock()
	m.live[conversationID] = p
	m.mu.Unlock()
}

// Clear removes the conversation's live prompt, if any.
func (m *PromptManager) Clear(ctx context.Context, conversationID int64) {
	m.mu.Lock()
	p := m.live[conversationID]
	delete(m.live, conversationID)
	m.mu.Unlock()
	if p == nil {
		return
	}
	p.timer.Stop()
	m.discard(ctx, p.ref)
}

// Discard removes an arbitrary message best-effort. Used for the
// operator's own input messages, a presentation nicety only.
func (m *PromptManager) Discard(ctx context.Context, ref MessageRef) {
	if ref.IsZero() {
		return
	}
	m.discard(ctx, ref)
}

// Live reports the currently tracked prompt for a conversation.
func (m *PromptManager) Live(conversationID int64) (MessageRef, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.live[conversationID]
	if !ok {
		return MessageRef{}, false
	}
	return p.ref, true
}

func (m *PromptManager) expire(conversationID int64, ref MessageRef) {
	m.mu.Lock()
	p, ok := m.live[conversationID]
	if !ok || p.ref != ref {
		// Superseded before the timer fired.
		m.mu.Unlock()
		return
	}
	delete(m.live, conversationID)
	m.mu.Unlock()
	m.discard(context.Background(), ref)
}

// discard swallows removal failures on purpose: deleting an
// already-deleted message is not an error for this engine.
func (m *PromptManager) discard(ctx context.Context, ref MessageRef) {
	if err := m.presenter.Remove(ctx, ref); err != nil && !errors.Is(err, ErrMessageNotFound) {
		logger.Debug(ctx, "workflow", "prompt.remove_failed",
			slog.String("status", "skip"),
			slog.Int64("chat_id", ref.ChatID),
			slog.String("err", err.Error()),
		)
	}
}
