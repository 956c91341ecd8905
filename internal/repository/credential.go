package repository

import (
	"context"

	"tiny-bank/internal/domain"
)

// CredentialRepository keeps password hashes for the credential provider.
type CredentialRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, cred *domain.Credential) error
	Get(ctx context.Context, username string) (*domain.Credential, error)
	SetDisabled(ctx context.Context, username string, disabled bool) error
	Delete(ctx context.Context, username string) error
}
