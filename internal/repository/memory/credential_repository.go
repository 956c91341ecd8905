package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

type CredentialRepository struct {
	mu    sync.RWMutex
	creds map[string]domain.Credential
}

func NewCredentialRepository() repository.CredentialRepository {
	return &CredentialRepository{creds: make(map[string]domain.Credential)}
}

func (r *CredentialRepository) Init(context.Context) error { return nil }

func (r *CredentialRepository) Create(_ context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.creds[cred.Username]; exists {
		return fmt.Errorf("credential %q: %w", cred.Username, repository.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now
	r.creds[cred.Username] = *cred
	return nil
}

func (r *CredentialRepository) Get(_ context.Context, username string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.creds[username]
	if !ok {
		return nil, fmt.Errorf("credential %q: %w", username, repository.ErrNotFound)
	}
	return &cred, nil
}

func (r *CredentialRepository) SetDisabled(_ context.Context, username string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.creds[username]
	if !ok {
		return fmt.Errorf("credential %q: %w", username, repository.ErrNotFound)
	}
	cred.Disabled = disabled
	cred.UpdatedAt = time.Now().UTC()
	r.creds[username] = cred
	return nil
}

func (r *CredentialRepository) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.creds[username]; !ok {
		return fmt.Errorf("credential %q: %w", username, repository.ErrNotFound)
	}
	delete(r.creds, username)
	return nil
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)
