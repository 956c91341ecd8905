package repository

import (
	"context"

	"tiny-bank/internal/domain"
)

// UserRepository defines persistence operations for User entities keyed by username.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SetActive(ctx context.Context, username string, active bool) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context) ([]domain.User, error)
}
