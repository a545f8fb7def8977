package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CashAsset is the asset name of the currency balance that funds BUY orders.
const CashAsset = "TRY"

// Balance represents a customer's holding of a single named asset.
// UsableSize is the part of TotalSize not committed to pending orders.
type Balance struct {
	CustomerID string
	AssetName  string
	TotalSize  decimal.Decimal
	UsableSize decimal.Decimal
	UpdatedAt  time.Time
}

// CheckInvariant reports ErrInvariantViolation unless
// 0 <= UsableSize <= TotalSize.
func (b *Balance) CheckInvariant() error {
	if b.UsableSize.IsNegative() {
		return fmt.Errorf("%w: %s usable size %s is negative", ErrInvariantViolation, b.AssetName, b.UsableSize)
	}
	if b.UsableSize.GreaterThan(b.TotalSize) {
		return fmt.Errorf("%w: %s usable size %s exceeds total size %s",
			ErrInvariantViolation, b.AssetName, b.UsableSize, b.TotalSize)
	}
	return nil
}

// WithDelta returns a copy of the balance with delta added to UsableSize.
// The receiver is left untouched. If the result would break the balance
// invariant, it returns ErrInvariantViolation.
func (b *Balance) WithDelta(delta decimal.Decimal) (*Balance, error) {
	next := b.Clone()
	next.UsableSize = b.UsableSize.Add(delta)
	if err := next.CheckInvariant(); err != nil {
		return nil, err
	}
	return next, nil
}

// Clone returns a copy of the balance.
func (b *Balance) Clone() *Balance {
	c := *b
	return &c
}
