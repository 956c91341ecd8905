package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

// balances are stored as decimal strings so no precision is lost in REAL columns
const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	username TEXT PRIMARY KEY,
	balance TEXT NOT NULL DEFAULT '0',
	active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO accounts (username, balance, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		account.Username,
		account.Balance.String(),
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %q: %w", account.Username, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, username string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT username, balance, active, created_at, updated_at
FROM accounts
WHERE username = ?`,
		username,
	)
	return scanAccount(row)
}

func (r *AccountRepository) Put(ctx context.Context, account *domain.Account) error {
	account.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE accounts
SET balance = ?, active = ?, updated_at = ?
WHERE username = ?`,
		account.Balance.String(),
		account.Active,
		account.UpdatedAt,
		account.Username,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return expectOneRow(res, "account", account.Username)
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT username, balance, active, created_at, updated_at
FROM accounts
ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func scanAccount(row interface {
	Scan(dest ...any) error
}) (*domain.Account, error) {
	var (
		account domain.Account
		balance string
	)
	if err := row.Scan(
		&account.Username,
		&balance,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance of %q: %w", account.Username, err)
	}
	account.Balance = amount
	return &account, nil
}
