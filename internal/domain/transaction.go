package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
)

// Transaction is an immutable entry in a user's transaction log.
// Counterparty is empty unless the entry is one leg of a transfer.
type Transaction struct {
	ID           string
	Username     string
	Amount       decimal.Decimal
	Type         TransactionType
	Counterparty string
	CreatedAt    time.Time
}
