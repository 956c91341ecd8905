package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the balance of exactly one user. Balance is never negative.
type Account struct {
	Username  string
	Balance   decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
