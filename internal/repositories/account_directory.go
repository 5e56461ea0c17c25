package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/db"
)

// PostgresAccountDirectory stores authentication accounts in PostgreSQL.
type PostgresAccountDirectory struct {
	pool db.Pool
}

// NewPostgresAccountDirectory constructs an account directory backed by PostgreSQL.
func NewPostgresAccountDirectory(pool db.Pool) *PostgresAccountDirectory {
	return &PostgresAccountDirectory{pool: pool}
}

// Create persists a new account. A taken email address reports auth.ErrEmailInUse.
func (r *PostgresAccountDirectory) Create(ctx context.Context, account auth.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO accounts (uid, email, display_name, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, account.UID, account.Email, account.DisplayName, account.PasswordHash, account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", auth.ErrEmailInUse, ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// FindByEmail fetches an account by its normalised email address.
func (r *PostgresAccountDirectory) FindByEmail(ctx context.Context, email string) (auth.Account, error) {
	return r.findOne(ctx, `
        SELECT uid, email, display_name, password_hash, created_at, updated_at
        FROM accounts
        WHERE email = $1
    `, email)
}

// FindByID fetches an account by uid.
func (r *PostgresAccountDirectory) FindByID(ctx context.Context, uid string) (auth.Account, error) {
	return r.findOne(ctx, `
        SELECT uid, email, display_name, password_hash, created_at, updated_at
        FROM accounts
        WHERE uid = $1
    `, uid)
}

func (r *PostgresAccountDirectory) findOne(ctx context.Context, query string, arg string) (auth.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return auth.Account{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var account auth.Account
	err = conn.QueryRow(ctx, query, arg).Scan(
		&account.UID,
		&account.Email,
		&account.DisplayName,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Account{}, auth.ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("select account: %w", err)
	}

	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

var _ auth.Directory = (*PostgresAccountDirectory)(nil)
