package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/apperrors"
)

// User is the directory's view of an identity. Display names copied into
// conversations are denormalized snapshots of this record.
type User struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Directory resolves identities to human-readable profiles.
type Directory interface {
	GetUserByID(ctx context.Context, userID string) (User, error)
	BulkUsers(ctx context.Context, ids []string) ([]User, error)
}

// PostgresDirectory reads the users table.
type PostgresDirectory struct {
	db *sqlx.DB
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(db *sqlx.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// GetUserByID fetches one user.
func (d *PostgresDirectory) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := d.db.GetContext(ctx, &user,
		`SELECT id, full_name, email, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperrors.NotFound("user not found")
	}
	if err != nil {
		return User{}, apperrors.Unavailable("user lookup failed", err)
	}
	return user, nil
}

// BulkUsers fetches multiple users in one query; unknown ids are skipped.
func (d *PostgresDirectory) BulkUsers(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, full_name, email, created_at FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, apperrors.Internal("bulk user query build failed", err)
	}
	query = d.db.Rebind(query)

	var users []User
	if err := d.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, apperrors.Unavailable("bulk user lookup failed", err)
	}
	return users, nil
}
