package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept for sizes and prices.
const AmountScale = 4

// ParseAmount parses a decimal quantity or price. It rejects negative
// values and values with more than AmountScale fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if err := CheckAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckAmount validates an already decoded amount the same way
// ParseAmount does.
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("amount must be >= 0")
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("amount must have at most %d decimal places", AmountScale)
	}
	return nil
}
