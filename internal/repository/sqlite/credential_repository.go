package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

const createCredentialsTable = `
CREATE TABLE IF NOT EXISTS credentials (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	disabled INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) repository.CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createCredentialsTable); err != nil {
		return fmt.Errorf("create credentials table: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO credentials (username, password_hash, disabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		cred.Username,
		cred.PasswordHash,
		cred.Disabled,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("credential %q: %w", cred.Username, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Get(ctx context.Context, username string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.QueryRowContext(ctx, `
SELECT username, password_hash, disabled, created_at, updated_at
FROM credentials
WHERE username = ?`, username).Scan(
		&cred.Username,
		&cred.PasswordHash,
		&cred.Disabled,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %q: %w", username, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return &cred, nil
}

func (r *CredentialRepository) SetDisabled(ctx context.Context, username string, disabled bool) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE credentials SET disabled = ?, updated_at = ? WHERE username = ?`,
		disabled, time.Now().UTC(), username,
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return expectOneRow(res, "credential", username)
}

func (r *CredentialRepository) Delete(ctx context.Context, username string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return expectOneRow(res, "credential", username)
}
