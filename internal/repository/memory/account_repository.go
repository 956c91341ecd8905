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

type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewAccountRepository() repository.AccountRepository {
	return &AccountRepository{accounts: make(map[string]domain.Account)}
}

func (r *AccountRepository) Init(context.Context) error { return nil }

func (r *AccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.Username]; exists {
		return fmt.Errorf("account %q: %w", account.Username, repository.ErrAlreadyExists)
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.Username] = *account
	return nil
}

func (r *AccountRepository) Get(_ context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[username]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", username, repository.ErrNotFound)
	}
	return &account, nil
}

func (r *AccountRepository) Put(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.accounts[account.Username]
	if !ok {
		return fmt.Errorf("account %q: %w", account.Username, repository.ErrNotFound)
	}
	account.CreatedAt = current.CreatedAt
	account.UpdatedAt = time.Now().UTC()
	r.accounts[account.Username] = *account
	return nil
}

func (r *AccountRepository) List(context.Context) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

var _ repository.AccountRepository = (*AccountRepository)(nil)
