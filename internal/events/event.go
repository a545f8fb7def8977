// Package events publishes order lifecycle notifications to the
// collaborators that settle or match orders.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/brokerage/internal/domain"
)

// Type names an order lifecycle event.
type Type string

const (
	TypeOrderCreated  Type = "order.created"
	TypeOrderCanceled Type = "order.canceled"
)

// Event is the JSON payload delivered to every sink.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"event"`
	Timestamp string    `json:"timestamp"`
	Data      OrderData `json:"data"`
}

type OrderData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	AssetName  string `json:"asset_name"`
	Side       string `json:"side"`
	Size       string `json:"size"`
	Price      string `json:"price"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

// NewOrderEvent builds an event of type t describing o.
func NewOrderEvent(t Type, o *domain.Order) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		Data: OrderData{
			OrderID:    o.OrderID,
			CustomerID: o.CustomerID,
			AssetName:  o.AssetName,
			Side:       string(o.Side),
			Size:       o.Size.String(),
			Price:      o.Price.String(),
			Status:     string(o.Status),
			CreatedAt:  o.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
