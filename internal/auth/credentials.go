// Package auth holds the credential provider used by user registration and
// the JWT issuer used by the HTTP layer.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

var (
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCredentialsDisabled indicates the user was deactivated.
	ErrCredentialsDisabled = errors.New("credentials disabled")
)

// Provider provisions and revokes login credentials.
type Provider interface {
	Provision(ctx context.Context, username, password string) error
	Disable(ctx context.Context, username string) error
	Revoke(ctx context.Context, username string) error
	Verify(ctx context.Context, username, password string) error
}

type credentialStore struct {
	creds repository.CredentialRepository
	cost  int
}

// NewCredentialStore returns a bcrypt-backed Provider. A cost of 0 means bcrypt.DefaultCost.
func NewCredentialStore(creds repository.CredentialRepository, cost int) Provider {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &credentialStore{creds: creds, cost: cost}
}

func (s *credentialStore) Provision(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.creds.Create(ctx, &domain.Credential{
		Username:     username,
		PasswordHash: string(hash),
	})
}

// Disable keeps the hash but refuses further logins.
func (s *credentialStore) Disable(ctx context.Context, username string) error {
	return s.creds.SetDisabled(ctx, username, true)
}

// Revoke drops the credential entirely; used to undo a half-finished registration.
func (s *credentialStore) Revoke(ctx context.Context, username string) error {
	return s.creds.Delete(ctx, username)
}

func (s *credentialStore) Verify(ctx context.Context, username, password string) error {
	cred, err := s.creds.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	if cred.Disabled {
		return ErrCredentialsDisabled
	}
	return nil
}
