package utils

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema bootstrap mirrors what a migration tool would apply.
// Statements are idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(80) UNIQUE NOT NULL,
		email VARCHAR(120) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		public_key TEXT,
		private_key TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS call_sessions (
		id BIGSERIAL PRIMARY KEY,
		session_id VARCHAR(255) UNIQUE NOT NULL,
		caller_id BIGINT REFERENCES users(id),
		callee_id BIGINT REFERENCES users(id),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		type VARCHAR(40) NOT NULL,
		actor_user_id BIGINT,
		session_id VARCHAR(255),
		message TEXT,
		metadata TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
	`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE INDEX IF NOT EXISTS idx_call_sessions_session_id ON call_sessions(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at)`,
}

// EnsureSchema creates the tables and indexes the service depends on. The
// statements run in one transaction so a failed startup leaves either the
// full schema or none of it.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema bootstrap: %w", err)
			}
		}
		return nil
	})
}
