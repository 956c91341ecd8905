package repository

import (
	"context"

	"tiny-bank/internal/domain"
)

// AccountRepository stores one account per username.
type AccountRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, account *domain.Account) error
	Get(ctx context.Context, username string) (*domain.Account, error)
	Put(ctx context.Context, account *domain.Account) error
	List(ctx context.Context) ([]domain.Account, error)
}

// TransactionRepository is the append-only per-user transaction log.
type TransactionRepository interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, tx *domain.Transaction) error
	ListByUser(ctx context.Context, username string) ([]domain.Transaction, error)
}
