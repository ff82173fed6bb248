package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists sessions in the call_sessions table.
// Status is stored as text; translation happens only here.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, cs CallSession) error {
	const q = `
INSERT INTO call_sessions (session_id, caller_id, callee_id, status, created_at)
VALUES ($1,$2,$3,$4,$5)
`
	_, err := s.db.ExecContext(ctx, q,
		cs.SessionID,
		cs.CallerID,
		cs.CalleeID,
		string(cs.Status),
		cs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (CallSession, bool, error) {
	const q = `
SELECT session_id, caller_id, callee_id, status, created_at, ended_at
FROM call_sessions
WHERE session_id = $1
`
	var cs CallSession
	var rawStatus string
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(
		&cs.SessionID,
		&cs.CallerID,
		&cs.CalleeID,
		&rawStatus,
		&cs.CreatedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, false, nil
		}
		return CallSession{}, false, fmt.Errorf("%w: get: %v", ErrStoreUnavailable, err)
	}

	status, ok := ParseStatus(rawStatus)
	if !ok {
		return CallSession{}, false, fmt.Errorf("session %s has unknown stored status %q", sessionID, rawStatus)
	}
	cs.Status = status
	if endedAt.Valid {
		t := endedAt.Time
		cs.EndedAt = &t
	}
	return cs, true, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, sessionID string, expected, next Status, endedAt *time.Time) error {
	const q = `
UPDATE call_sessions
SET status = $1, ended_at = $2
WHERE session_id = $3 AND status = $4
`
	res, err := s.db.ExecContext(ctx, q, string(next), endedAt, sessionID, string(expected))
	if err != nil {
		return fmt.Errorf("%w: update status: %v", ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update status: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		return nil
	}

	// CAS missed: distinguish unknown id, terminal row, and plain mismatch.
	current, found, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if current.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	return ErrInvalidTransition
}
