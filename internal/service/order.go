package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/events"
	"github.com/efreitasn/brokerage/internal/ledger"
	"github.com/efreitasn/brokerage/internal/store"
)

// CreateOrderRequest represents the input for order creation.
type CreateOrderRequest struct {
	CustomerID string
	AssetName  string
	Side       domain.OrderSide
	Size       decimal.Decimal
	Price      decimal.Decimal
}

// OrderService handles order creation, retrieval, listing and
// cancellation. Every order write and its balance effect commit together.
type OrderService struct {
	store     store.Store
	ledger    *ledger.Ledger
	publisher events.Publisher
	logger    *slog.Logger
}

// NewOrderService creates a new OrderService. A nil publisher drops events.
func NewOrderService(s store.Store, l *ledger.Ledger, publisher events.Publisher, logger *slog.Logger) *OrderService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		store:     s,
		ledger:    l,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateOrder validates the request, reserves the order's cost and stores
// the order as PENDING in one unit of work.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	order := &domain.Order{
		OrderID:    uuid.New().String(),
		CustomerID: req.CustomerID,
		AssetName:  req.AssetName,
		Side:       req.Side,
		Size:       req.Size,
		Price:      req.Price,
		Status:     domain.OrderStatusPending,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := ledger.RequireActiveCustomer(ctx, tx, order.CustomerID); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return s.ledger.Reserve(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	r := order.Reservation()
	s.logger.Info("order created",
		"order_id", order.OrderID,
		"customer_id", order.CustomerID,
		"asset_name", order.AssetName,
		"side", string(order.Side),
		"reserved_asset", r.AssetName,
		"reserved_amount", r.Amount.String(),
	)
	s.publish(ctx, events.TypeOrderCreated, order)
	return order, nil
}

// GetOrder returns an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.store.Order(ctx, orderID)
}

// ListOrders returns all of the customer's orders, oldest first. An
// unknown customer yields an empty list.
func (s *OrderService) ListOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.store.Orders(ctx, customerID, store.TimeRange{})
}

// ListOrdersInRange returns the customer's orders created between start
// and end inclusive, oldest first.
func (s *OrderService) ListOrdersInRange(ctx context.Context, customerID string, start, end time.Time) ([]*domain.Order, error) {
	if start.IsZero() || end.IsZero() {
		return nil, &domain.ValidationError{Message: "start and end are both required"}
	}
	if end.Before(start) {
		return nil, &domain.ValidationError{Message: "end must not be before start"}
	}
	return s.store.Orders(ctx, customerID, store.TimeRange{Start: start, End: end})
}

// CancelOrder moves a PENDING order to CANCELED and credits its
// reservation back in one unit of work.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.CanTransitionTo(domain.OrderStatusCanceled) {
			return fmt.Errorf("%w: order with id %s is not pending, current status: %s",
				domain.ErrOrderNotPending, o.OrderID, o.Status)
		}
		o.Status = domain.OrderStatusCanceled
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.ledger.Restore(ctx, tx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order canceled", "order_id", order.OrderID, "customer_id", order.CustomerID)
	s.publish(ctx, events.TypeOrderCanceled, order)
	return order, nil
}

// publish runs after commit. A failed publish never undoes the order.
func (s *OrderService) publish(ctx context.Context, t events.Type, o *domain.Order) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.NewOrderEvent(t, o)); err != nil {
		s.logger.Warn("failed to publish order event",
			"event", string(t),
			"order_id", o.OrderID,
			"error", err,
		)
	}
}

func validateCreateOrder(req CreateOrderRequest) error {
	if !customerIDRegex.MatchString(req.CustomerID) {
		return &domain.ValidationError{Message: "customer_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if err := validateAssetName(req.AssetName); err != nil {
		return err
	}
	if !req.Side.Valid() {
		return &domain.ValidationError{Message: "side must be 'BUY' or 'SELL'"}
	}
	if !req.Size.IsPositive() {
		return &domain.ValidationError{Message: "size must be > 0"}
	}
	if !req.Price.IsPositive() {
		return &domain.ValidationError{Message: "price must be > 0"}
	}
	if err := domain.CheckAmount(req.Size); err != nil {
		return &domain.ValidationError{Message: "size: " + err.Error()}
	}
	if err := domain.CheckAmount(req.Price); err != nil {
		return &domain.ValidationError{Message: "price: " + err.Error()}
	}
	r := domain.ReservationFor(req.Side, req.AssetName, req.Size, req.Price)
	if err := domain.CheckAmount(r.Amount); err != nil {
		return &domain.ValidationError{Message: "price × size: " + err.Error()}
	}
	return nil
}
