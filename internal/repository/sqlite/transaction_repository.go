package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tiny-bank/internal/domain"
	"tiny-bank/internal/repository"
)

const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL,
	amount TEXT NOT NULL,
	type TEXT NOT NULL,
	counterparty TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_username ON transactions(username, seq);
`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) repository.TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTransactionsTable); err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}
	return nil
}

func (r *TransactionRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO transactions (id, username, amount, type, counterparty, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.Username,
		tx.Amount.String(),
		string(tx.Type),
		tx.Counterparty,
		tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %q: %w", tx.ID, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, username string) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, username, amount, type, counterparty, created_at
FROM transactions
WHERE username = ?
ORDER BY seq ASC`, username)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		var (
			tx     domain.Transaction
			amount string
			typ    string
		)
		if err := rows.Scan(&tx.ID, &tx.Username, &amount, &typ, &tx.Counterparty, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount of transaction %q: %w", tx.ID, err)
		}
		tx.Type = domain.TransactionType(typ)
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}
