// Package store defines the persistence contract consumed by the ledger and
// the order services, and provides an in-memory implementation of it.
package store

import (
	"context"
	"time"

	"github.com/efreitasn/brokerage/internal/domain"
)

// TimeRange bounds an order listing by creation time. Both ends are
// inclusive; a zero Start or End leaves that side unbounded.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Tx is a failure-atomic unit of work. Writes become visible to other
// readers only when the enclosing InTx call commits, and are discarded if
// it returns an error. Records returned by the ForUpdate methods stay
// exclusively locked until the unit of work ends.
type Tx interface {
	// Customer returns domain.ErrCustomerNotFound if the customer does not exist.
	Customer(ctx context.Context, customerID string) (*domain.Customer, error)

	// BalanceForUpdate locks and returns the balance for the pair. It
	// returns domain.ErrBalanceNotFound if the pair has no balance.
	BalanceForUpdate(ctx context.Context, customerID, assetName string) (*domain.Balance, error)

	// InsertBalance returns domain.ErrBalanceAlreadyExists if the pair
	// already has a balance.
	InsertBalance(ctx context.Context, b *domain.Balance) error

	// UpdateBalance writes a balance previously locked by BalanceForUpdate.
	UpdateBalance(ctx context.Context, b *domain.Balance) error

	InsertOrder(ctx context.Context, o *domain.Order) error

	// OrderForUpdate locks and returns an order. It returns
	// domain.ErrOrderNotFound if the order does not exist.
	OrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateOrder writes an order previously locked by OrderForUpdate.
	UpdateOrder(ctx context.Context, o *domain.Order) error
}

// Store is the persistence contract. Balances can only be written inside
// InTx, through a Tx that holds the balance lock.
type Store interface {
	// InTx runs fn in a unit of work. If fn returns an error, or ctx is
	// done before the commit, nothing fn wrote is applied.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	InsertCustomer(ctx context.Context, c *domain.Customer) error
	// DeleteCustomer flags an active customer as deleted in one step. It
	// returns domain.ErrCustomerNotFound if the customer does not exist or
	// is already deleted.
	DeleteCustomer(ctx context.Context, customerID string) error
	Customer(ctx context.Context, customerID string) (*domain.Customer, error)

	Balance(ctx context.Context, customerID, assetName string) (*domain.Balance, error)
	// Balances returns the customer's balances ordered by asset name.
	Balances(ctx context.Context, customerID string) ([]*domain.Balance, error)

	Order(ctx context.Context, orderID string) (*domain.Order, error)
	// Orders returns the customer's orders created within r, oldest first.
	// It returns an empty slice, not an error, when nothing matches.
	Orders(ctx context.Context, customerID string, r TimeRange) ([]*domain.Order, error)

	Close() error
}
