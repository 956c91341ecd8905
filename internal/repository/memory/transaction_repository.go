package memory

import (
	"context"
	"sync"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

type TransactionRepository struct {
	mu     sync.RWMutex
	byUser map[string][]domain.Transaction
}

func NewTransactionRepository() repository.TransactionRepository {
	return &TransactionRepository{byUser: make(map[string][]domain.Transaction)}
}

func (r *TransactionRepository) Init(context.Context) error { return nil }

func (r *TransactionRepository) Append(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	r.byUser[tx.Username] = append(r.byUser[tx.Username], *tx)
	r.mu.Unlock()
	return nil
}

// ListByUser returns the log in insertion order; unknown users get an empty slice.
func (r *TransactionRepository) ListByUser(_ context.Context, username string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Transaction, len(r.byUser[username]))
	copy(out, r.byUser[username])
	return out, nil
}

var _ repository.TransactionRepository = (*TransactionRepository)(nil)
