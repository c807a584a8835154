package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePresenter records presentation calls and hands out sequential
// message ids. Replace edits in place and keeps the original handle,
// matching how message edits behave on the wire.
type fakePresenter struct {
	mu         sync.Mutex
	nextID     int
	sent       []fakeRender
	replaced   []fakeRender
	removed    []MessageRef
	replaceErr error
	removeErr  error
}

type fakeRender struct {
	ref     MessageRef
	text    string
	options []Option
}

func (p *fakePresenter) Send(_ context.Context, chatID int64, text string, options []Option) (MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	ref := MessageRef{ChatID: chatID, MessageID: p.nextID}
	p.sent = append(p.sent, fakeRender{ref: ref, text: text, options: options})
	return ref, nil
}

func (p *fakePresenter) Replace(_ context.Context, ref MessageRef, text string, options []Option) (MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.replaceErr != nil {
		return MessageRef{}, p.replaceErr
	}
	p.replaced = append(p.replaced, fakeRender{ref: ref, text: text, options: options})
	return ref, nil
}

func (p *fakePresenter) Remove(_ context.Context, ref MessageRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removeErr != nil {
		return p.removeErr
	}
	p.removed = append(p.removed, ref)
	return nil
}

func (p *fakePresenter) counts() (sent, replaced, removed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent), len(p.replaced), len(p.removed)
}

func (p *fakePresenter) lastShown() (fakeRender, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var last fakeRender
	var lastID int
	ok := false
	for _, r := range append(append([]fakeRender(nil), p.sent...), p.replaced...) {
		if !ok || r.ref.MessageID >= lastID {
			last, lastID, ok = r, r.ref.MessageID, true
		}
	}
	return last, ok
}

func (p *fakePresenter) removedRefs() []MessageRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MessageRef(nil), p.removed...)
}

func TestPromptManagerShowTracksLivePrompt(t *testing.T) {
	fp := &fakePresenter{}
	pm := NewPromptManager(fp, time.Minute)

	pm.Show(context.Background(), 10, "pick a shift", []Option{{ID: "8-20", Label: "Shift 8-20"}})

	ref, ok := pm.Live(10)
	if !ok {
		t.Fatal("expected live prompt")
	}
	sent, replaced, removed := fp.counts()
	if sent != 1 || replaced != 0 || removed != 0 {
		t.Fatalf("calls = %d/%d/%d, expected 1/0/0", sent, replaced, removed)
	}
	if fp.sent[0].ref != ref {
		t.Fatalf("live ref %v does not match sent ref %v", ref, fp.sent[0].ref)
	}
}

func TestPromptManagerShowReplacesPrevious(t *testing.T) {
	fp := &fakePresenter{}
	pm := NewPromptManager(fp, time.Minute)
	ctx := context.Background()

	pm.Show(ctx, 10, "pick a shift", nil)
	first, _ := pm.Live(10)
	pm.Show(ctx, 10, "pick a type", nil)

	sent, replaced, removed := fp.counts()
	if sent != 1 || replaced != 1 || removed != 0 {
		t.Fatalf("calls = %d/%d/%d, expected 1/1/0", sent, replaced, removed)
	}
	ref, ok := pm.Live(10)
	if !ok || ref != first {
		t.Fatalf("live ref = %v, expected edit of %v", ref, first)
	}
}

func TestPromptManagerReplaceFallsBackToSend(t *testing.T) {
	fp := &fakePresenter{}
	pm := NewPromptManager(fp, time.Minute)
	ctx := context.Background()

	pm.Show(ctx, 10, "pick a shift", nil)
	fp.mu.Lock()
	fp.replaceErr = errors.New("message to edit not found")
	fp.mu.Unlock()
	pm.Show(ctx, 10, "pick a type", nil)

	sent, _, removed := fp.counts()
	if sent != 2 {
		t.Fatalf("sends = %d, expected fallback send", sent)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, expected stale prompt discarded", removed)
	}
	if _, ok := pm.Live(10); !ok {
		t.Fatal("expected live prompt after fallback")
	}
}

func TestPromptManagerExpiresPrompt(t *testing.T) {
	fp := &fakePresenter{}
	pm := NewPromptManager(fp, 30*time.Millisecond)

	pm.Show(context.Background(), 10, "pick a shift", nil)
	ref, _ := pm.Live(10)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if refs := fp.removedRefs(); len(refs) == 1 && refs[0] == ref {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("prompt was not removed after ttl")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := pm.Live(10); ok {
		t.Fatal("expired prompt still tracked as live")
	}
}

func TestPromptManagerSupersessionCancelsExpiry(t *testing.T) {
	fp := &fakePresenter{}
	pm := NewPromptManager(fp, 400*time.Millisecond)
	ctx := context.Background()

	pm.Show(ctx, 10, "pick a shift", nil)
	time.Sleep(100 * time.Millisecond)
	pm.Show(ctx, 10, "pick a type", nil)

	// Past the first prompt's deadline but well before the second's.
	time.Sleep(330 * time.Millisecond)
	if _, _, removed := fp.counts(); removed != 0 {
		t.Fatalf("removed = %d, first timer should have been cancelled", removed)
	}
	if _, ok := pm.Live(10); !ok {
		t.Fatal("superseding prompt should still be live")
	}
}

func TestPromptManagerClear(t *testing.T) {
	fp := &fakePresenter{}
	pm := NewPromptManager(fp, time.Minute)
	ctx := context.Background()

	pm.Show(ctx, 10, "pick a shift", nil)
	ref, _ := pm.Live(10)
	pm.Clear(ctx, 10)

	if refs := fp.removedRefs(); len(refs) != 1 || refs[0] != ref {
		t.Fatalf("removed = %v, expected %v", refs, ref)
	}
	if _, ok := pm.Live(10); ok {
		t.Fatal("cleared prompt still tracked as live")
	}
	// Clearing again is a no-op.
	pm.Clear(ctx, 10)
	if _, _, removed := fp.counts(); removed != 1 {
		t.Fatalf("removed = %d after double clear", removed)
	}
}

func TestPromptManagerDiscardSwallowsMissingMessage(t *testing.T) {
	fp := &fakePresenter{removeErr: ErrMessageNotFound}
	pm := NewPromptManager(fp, time.Minute)
	ctx := context.Background()

	pm.Discard(ctx, MessageRef{ChatID: 10, MessageID: 99})
	pm.Discard(ctx, MessageRef{})

	if _, _, removed := fp.counts(); removed != 0 {
		t.Fatalf("removed = %d, expected none recorded", removed)
	}
}
