package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxFractionDigits is the finest monetary unit accepted by the ledger (cents).
	MaxFractionDigits = 2
	// MaxIntegerDigits bounds the whole part of a single amount.
	MaxIntegerDigits = 15

	// maxScale allows trailing zeros past the cents, as in 1.500.
	maxScale = 18
)

var amountPattern = regexp.MustCompile(`^\d{1,15}(\.\d{1,18})?$`)

// ValidateAmount accepts strictly positive amounts with at most two significant
// fractional digits. Trailing zeros are fine: 1.500 passes, 1.505 does not.
func ValidateAmount(amount decimal.Decimal) error {
	exp := amount.Exponent()
	if exp < -maxScale || exp > MaxIntegerDigits {
		return fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	if int64(amount.NumDigits())+int64(exp) > MaxIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, MaxIntegerDigits)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if !amount.Equal(amount.Truncate(MaxFractionDigits)) {
		return fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, MaxFractionDigits)
	}
	return nil
}

// ParseAmount accepts plain decimal notation only and validates the result.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if !amountPattern.MatchString(raw) {
		return decimal.Zero, fmt.Errorf("%w: not a plain decimal number", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: not a number", ErrInvalidAmount)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
