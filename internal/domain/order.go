package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether an order buys or sells its asset.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusMatched  OrderStatus = "MATCHED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Terminal reports whether no transition leaves the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusMatched || s == OrderStatusCanceled
}

// Order represents a buy or sell instruction placed by a customer.
type Order struct {
	OrderID    string
	CustomerID string
	AssetName  string
	Side       OrderSide
	Size       decimal.Decimal
	Price      decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
}

// CanTransitionTo reports whether the order may move to the given status.
// Only PENDING orders move, and only to MATCHED or CANCELED.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	if o.Status != OrderStatusPending {
		return false
	}
	return next == OrderStatusMatched || next == OrderStatusCanceled
}

// Reservation is the usable-size effect of an order on one balance.
type Reservation struct {
	AssetName string
	Amount    decimal.Decimal
}

// ReservationFor computes which balance an order commits and by how much.
// A BUY commits price × size of the cash asset, a SELL commits size of
// the traded asset. Order creation debits this amount and cancellation
// credits it back.
func ReservationFor(side OrderSide, assetName string, size, price decimal.Decimal) Reservation {
	if side == OrderSideBuy {
		return Reservation{AssetName: CashAsset, Amount: price.Mul(size)}
	}
	return Reservation{AssetName: assetName, Amount: size}
}

// Reservation returns the reservation effect of the order.
func (o *Order) Reservation() Reservation {
	return ReservationFor(o.Side, o.AssetName, o.Size, o.Price)
}

// Clone returns a copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
