// Package memory provides map-backed repositories. Every method hands out
// copies, so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserRepository() repository.UserRepository {
	return &UserRepository{users: make(map[string]domain.User)}
}

func (r *UserRepository) Init(context.Context) error { return nil }

func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return fmt.Errorf("user %q: %w", user.Username, repository.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	stored.Password = ""
	r.users[user.Username] = stored
	return nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, repository.ErrNotFound)
	}
	return &user, nil
}

func (r *UserRepository) SetActive(_ context.Context, username string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[username]
	if !ok {
		return fmt.Errorf("user %q: %w", username, repository.ErrNotFound)
	}
	user.Active = active
	user.UpdatedAt = time.Now().UTC()
	r.users[username] = user
	return nil
}

func (r *UserRepository) Delete(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[username]; !ok {
		return fmt.Errorf("user %q: %w", username, repository.ErrNotFound)
	}
	delete(r.users, username)
	return nil
}

func (r *UserRepository) List(context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
