package workflow

import (
	"context"
	"sync"
	"time"
)

// Answers maps collected field names to their values.
type Answers map[string]string

func (a Answers) clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Session is the per-conversation dialog state.
type Session struct {
	Step           Step
	Answers        Answers
	LastAcceptedAt time.Time
}

func newSession() Session {
	return Session{Step: StepIdle, Answers: make(Answers)}
}

func (s Session) snapshot() Session {
	out := s
	out.Answers = s.Answers.clone()
	return out
}

// Store holds dialog sessions keyed by conversation id.
//
// Update applies the mutator under a per-conversation critical section
// with get-or-create semantics: all reads informing a transition and the
// write of its result happen atomically with respect to other events for
// the same conversation. Reset restores the initial empty session.
type Store interface {
	Update(ctx context.Context, conversationID int64, fn func(*Session) error) (Session, error)
	Reset(ctx context.Context, conversationID int64) error
	Get(ctx context.Context, conversationID int64) (Session, error)
}

type memoryEntry struct {
	mu   sync.Mutex
	sess Session
}

// MemoryStore is the default in-process Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]*memoryEntry
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[int64]*memoryEntry)}
}

func (s *MemoryStore) entry(conversationID int64) *memoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[conversationID]
	if !ok {
		e = &memoryEntry{sess: newSession()}
		s.entries[conversationID] = e
	}
	return e
}

// Update runs fn on the conversation's session while holding its lock.
func (s *MemoryStore) Update(_ context.Context, conversationID int64, fn func(*Session) error) (Session, error) {
	e := s.entry(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.Answers == nil {
		e.sess = newSession()
	}
	if err := fn(&e.sess); err != nil {
		return Session{}, err
	}
	return e.sess.snapshot(), nil
}

// Reset restores the initial empty session for the conversation.
func (s *MemoryStore) Reset(_ context.Context, conversationID int64) error {
	e := s.entry(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess = newSession()
	return nil
}

// Get returns a snapshot of the conversation's session.
func (s *MemoryStore) Get(_ context.Context, conversationID int64) (Session, error) {
	e := s.entry(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.snapshot(), nil
}
