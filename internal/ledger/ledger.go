// Package ledger owns reads, solvency checks and mutations of customer
// asset balances. It is the only writer of balance records.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

// Ledger enforces 0 <= usable_size <= total_size on every balance it
// writes. Each public mutation runs in its own unit of work; Reserve and
// Restore join the caller's.
type Ledger struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Ledger over the given store.
func New(s store.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  s,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Balance returns the balance for the pair, or domain.ErrBalanceNotFound.
func (l *Ledger) Balance(ctx context.Context, customerID, assetName string) (*domain.Balance, error) {
	return l.store.Balance(ctx, customerID, assetName)
}

// CashBalance returns the customer's cash balance.
func (l *Ledger) CashBalance(ctx context.Context, customerID string) (*domain.Balance, error) {
	return l.store.Balance(ctx, customerID, domain.CashAsset)
}

// Balances lists the customer's balances ordered by asset name.
func (l *Ledger) Balances(ctx context.Context, customerID string) ([]*domain.Balance, error) {
	return l.store.Balances(ctx, customerID)
}

// ValidateSufficient fails with domain.ErrInsufficientBalance if the
// pair's usable size is below required. It never writes.
func (l *Ledger) ValidateSufficient(ctx context.Context, customerID, assetName string, required decimal.Decimal) error {
	if required.IsNegative() {
		return &domain.ValidationError{Message: "required amount must be >= 0"}
	}
	b, err := l.store.Balance(ctx, customerID, assetName)
	if err != nil {
		return err
	}
	return checkSufficient(b, required)
}

// ApplyDelta adds delta to the pair's usable size and returns the new
// balance. A result outside [0, total_size] is rejected with
// domain.ErrInvariantViolation and nothing is written.
func (l *Ledger) ApplyDelta(ctx context.Context, customerID, assetName string, delta decimal.Decimal) (*domain.Balance, error) {
	var result *domain.Balance
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		result, err = l.applyDelta(ctx, tx, customerID, assetName, delta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateBalance creates the pair's balance. It fails with
// domain.ErrCustomerNotFound for unknown or deleted customers and with
// domain.ErrBalanceAlreadyExists if the pair already has one.
func (l *Ledger) CreateBalance(ctx context.Context, customerID, assetName string, total, usable decimal.Decimal) (*domain.Balance, error) {
	if assetName == "" {
		return nil, &domain.ValidationError{Message: "asset_name is required"}
	}
	for _, d := range []decimal.Decimal{total, usable} {
		if err := domain.CheckAmount(d); err != nil {
			return nil, &domain.ValidationError{Message: err.Error()}
		}
	}
	b := &domain.Balance{
		CustomerID: customerID,
		AssetName:  assetName,
		TotalSize:  total,
		UsableSize: usable,
		UpdatedAt:  l.now(),
	}
	if err := b.CheckInvariant(); err != nil {
		return nil, &domain.ValidationError{Message: "usable_size must be between 0 and total_size"}
	}

	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := RequireActiveCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		return tx.InsertBalance(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("balance created",
		"customer_id", customerID,
		"asset_name", assetName,
		"total_size", total.String(),
		"usable_size", usable.String(),
	)
	return b, nil
}

// CreateInitialCashBalance creates a zero cash balance for the customer.
// If one already exists it is returned unchanged and created is false,
// whatever the state of the customer.
func (l *Ledger) CreateInitialCashBalance(ctx context.Context, customerID string) (b *domain.Balance, created bool, err error) {
	err = l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.BalanceForUpdate(ctx, customerID, domain.CashAsset)
		if err == nil {
			b = existing
			return nil
		}
		if !errors.Is(err, domain.ErrBalanceNotFound) {
			return err
		}

		if err := RequireActiveCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		b = &domain.Balance{
			CustomerID: customerID,
			AssetName:  domain.CashAsset,
			TotalSize:  decimal.Zero,
			UsableSize: decimal.Zero,
			UpdatedAt:  l.now(),
		}
		created = true
		return tx.InsertBalance(ctx, b)
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		l.logger.Info("balance created", "customer_id", customerID, "asset_name", domain.CashAsset)
	} else {
		l.logger.Warn("cash balance already exists", "customer_id", customerID)
	}
	return b, created, nil
}

// SetUsable overwrites the pair's usable size. It is an administrative
// override, not a reservation, but the balance invariant still holds.
func (l *Ledger) SetUsable(ctx context.Context, customerID, assetName string, usable decimal.Decimal) (*domain.Balance, error) {
	var result *domain.Balance
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.BalanceForUpdate(ctx, customerID, assetName)
		if err != nil {
			return err
		}
		if usable.IsNegative() || usable.GreaterThan(b.TotalSize) {
			return &domain.ValidationError{
				Message: fmt.Sprintf("usable_size must be between 0 and total_size (%s)", b.TotalSize),
			}
		}
		result, err = l.write(ctx, tx, b, usable.Sub(b.UsableSize))
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("usable size overridden",
		"customer_id", customerID,
		"asset_name", assetName,
		"usable_size", usable.String(),
	)
	return result, nil
}

// Reserve debits the order's reservation inside tx. The sufficiency check
// and the debit run under the same balance lock.
func (l *Ledger) Reserve(ctx context.Context, tx store.Tx, o *domain.Order) error {
	r := o.Reservation()
	b, err := tx.BalanceForUpdate(ctx, o.CustomerID, r.AssetName)
	if err != nil {
		return err
	}
	if err := checkSufficient(b, r.Amount); err != nil {
		return err
	}
	_, err = l.write(ctx, tx, b, r.Amount.Neg())
	return err
}

// Restore credits the order's reservation back inside tx. It is the exact
// inverse of Reserve.
func (l *Ledger) Restore(ctx context.Context, tx store.Tx, o *domain.Order) error {
	r := o.Reservation()
	_, err := l.applyDelta(ctx, tx, o.CustomerID, r.AssetName, r.Amount)
	return err
}

func (l *Ledger) applyDelta(ctx context.Context, tx store.Tx, customerID, assetName string, delta decimal.Decimal) (*domain.Balance, error) {
	b, err := tx.BalanceForUpdate(ctx, customerID, assetName)
	if err != nil {
		return nil, err
	}
	return l.write(ctx, tx, b, delta)
}

// write is the single place a balance mutation is computed and stored.
func (l *Ledger) write(ctx context.Context, tx store.Tx, b *domain.Balance, delta decimal.Decimal) (*domain.Balance, error) {
	next, err := b.WithDelta(delta)
	if err != nil {
		l.logger.Error("balance invariant violation",
			"customer_id", b.CustomerID,
			"asset_name", b.AssetName,
			"usable_size", b.UsableSize.String(),
			"total_size", b.TotalSize.String(),
			"delta", delta.String(),
		)
		return nil, err
	}
	next.UpdatedAt = l.now()
	if err := tx.UpdateBalance(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func checkSufficient(b *domain.Balance, required decimal.Decimal) error {
	if b.UsableSize.LessThan(required) {
		return fmt.Errorf("%w: %s usable size %s, required %s",
			domain.ErrInsufficientBalance, b.AssetName, b.UsableSize, required)
	}
	return nil
}

// RequireActiveCustomer fails with domain.ErrCustomerNotFound unless the
// customer exists and is not soft-deleted.
func RequireActiveCustomer(ctx context.Context, tx store.Tx, customerID string) error {
	c, err := tx.Customer(ctx, customerID)
	if err != nil {
		return err
	}
	if !c.Active() {
		return domain.ErrCustomerNotFound
	}
	return nil
}
