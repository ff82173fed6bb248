package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the persistence contract for user accounts.
type Repository interface {
	Insert(ctx context.Context, u User) (User, error)
	GetByID(ctx context.Context, id int64) (User, bool, error)
	GetByUsername(ctx context.Context, username string) (User, bool, error)
	ListExcept(ctx context.Context, excludeID int64) ([]User, error)
}

const pgUniqueViolation = "23505"

// PostgresRepo stores users in the users table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Insert(ctx context.Context, u User) (User, error) {
	const q = `
INSERT INTO users (username, email, password_hash, public_key, private_key)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, created_at
`
	err := r.db.QueryRowContext(ctx, q,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.PublicKey,
		u.PrivateKey,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrAlreadyExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id int64) (User, bool, error) {
	const q = `
SELECT id, username, email, password_hash, public_key, private_key, created_at
FROM users
WHERE id = $1
`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, fmt.Errorf("get user by id: %w", err)
	}
	return u, true, nil
}

func (r *PostgresRepo) GetByUsername(ctx context.Context, username string) (User, bool, error) {
	const q = `
SELECT id, username, email, password_hash, public_key, private_key, created_at
FROM users
WHERE username = $1
`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, fmt.Errorf("get user by username: %w", err)
	}
	return u, true, nil
}

func (r *PostgresRepo) ListExcept(ctx context.Context, excludeID int64) ([]User, error) {
	const q = `
SELECT id, username, email, password_hash, public_key, private_key, created_at
FROM users
WHERE id != $1
ORDER BY username
`
	rows, err := r.db.QueryContext(ctx, q, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var pub, priv sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &pub, &priv, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	u.PublicKey = pub.String
	u.PrivateKey = priv.String
	return u, nil
}
