package workflow

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestMemoryStoreGetOrCreate(t *testing.T) {
	store := NewMemoryStore()
	sess, err := store.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Step != StepIdle {
		t.Fatalf("fresh session step = %s", sess.Step)
	}
	if len(sess.Answers) != 0 {
		t.Fatalf("fresh session answers = %v", sess.Answers)
	}
}

func TestMemoryStoreUpdateIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	const workers = 64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, 7, func(s *Session) error {
				n, _ := strconv.Atoi(s.Answers["n"])
				s.Answers["n"] = strconv.Itoa(n + 1)
				return nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Answers["n"] != strconv.Itoa(workers) {
		t.Fatalf("counter = %q, expected %d", sess.Answers["n"], workers)
	}
}

func TestMemoryStoreUpdatePropagatesError(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")
	_, err := store.Update(context.Background(), 1, func(*Session) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, expected %v", err, boom)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.Update(ctx, 3, func(s *Session) error {
		s.Step = StepChoosingType
		s.Answers[FieldShift] = "9-21"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Reset(ctx, 3); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sess, err := store.Get(ctx, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Step != StepIdle || len(sess.Answers) != 0 {
		t.Fatalf("session after reset = %+v", sess)
	}
}

func TestMemoryStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sess, err := store.Update(ctx, 5, func(s *Session) error {
		s.Answers[FieldShift] = "8-20"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	sess.Answers[FieldShift] = "11-23"

	stored, err := store.Get(ctx, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Answers[FieldShift] != "8-20" {
		t.Fatalf("stored shift = %q, snapshot mutation leaked", stored.Answers[FieldShift])
	}
}
