package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PGStore keeps live sessions in Postgres so a restarted process can pick
// up an in-flight dialog. Rows are deleted on reset, so nothing outlives
// a session. Per-conversation serialization comes from row-level locking:
// the upsert in Update acquires the row lock for the whole transaction.
type PGStore struct {
	db *sqlx.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

type sessionRow struct {
	Step           string    `db:"step"`
	Answers        []byte    `db:"answers"`
	LastAcceptedAt time.Time `db:"last_accepted_at"`
}

const upsertLockQuery = `
INSERT INTO workflow_sessions (conversation_id, step, answers, last_accepted_at)
VALUES ($1, $2, '{}'::jsonb, to_timestamp(0))
ON CONFLICT (conversation_id) DO UPDATE SET conversation_id = EXCLUDED.conversation_id
RETURNING step, answers, last_accepted_at`

// Update applies fn inside a transaction that holds the conversation's
// row lock, giving the same critical-section guarantee as MemoryStore.
func (s *PGStore) Update(ctx context.Context, conversationID int64, fn func(*Session) error) (Session, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("session tx begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row sessionRow
	if err := tx.GetContext(ctx, &row, upsertLockQuery, conversationID, string(StepIdle)); err != nil {
		return Session{}, fmt.Errorf("session lock: %w", err)
	}

	sess, err := rowToSession(row)
	if err != nil {
		return Session{}, err
	}

	if err := fn(&sess); err != nil {
		return Session{}, err
	}

	raw, err := json.Marshal(sess.Answers)
	if err != nil {
		return Session{}, fmt.Errorf("session answers encode: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE workflow_sessions
		 SET step = $2, answers = $3, last_accepted_at = $4, updated_at = now()
		 WHERE conversation_id = $1`,
		conversationID, string(sess.Step), raw, sess.LastAcceptedAt.UTC(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("session update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("session tx commit: %w", err)
	}
	return sess.snapshot(), nil
}

// Reset deletes the conversation's row; the next Update recreates it.
func (s *PGStore) Reset(ctx context.Context, conversationID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_sessions WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("session reset: %w", err)
	}
	return nil
}

// Get returns a snapshot without taking the row lock.
func (s *PGStore) Get(ctx context.Context, conversationID int64) (Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT step, answers, last_accepted_at FROM workflow_sessions WHERE conversation_id = $1`,
		conversationID)
	if err == sql.ErrNoRows {
		return newSession(), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session get: %w", err)
	}
	return rowToSession(row)
}

func rowToSession(row sessionRow) (Session, error) {
	sess := Session{
		Step:           Step(row.Step),
		Answers:        make(Answers),
		LastAcceptedAt: row.LastAcceptedAt,
	}
	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &sess.Answers); err != nil {
			return Session{}, fmt.Errorf("session answers decode: %w", err)
		}
	}
	if sess.Answers == nil {
		sess.Answers = make(Answers)
	}
	return sess, nil
}
