package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// createOrderRequest is the JSON request body for POST /orders.
type createOrderRequest struct {
	CustomerID string           `json:"customer_id"`
	AssetName  string           `json:"asset_name"`
	Side       string           `json:"side"`
	Size       *decimal.Decimal `json:"size"`
	Price      *decimal.Decimal `json:"price"`
}

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Size == nil || req.Price == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "size and price are required")
		return
	}

	order, err := h.orderSvc.CreateOrder(r.Context(), service.CreateOrderRequest{
		CustomerID: req.CustomerID,
		AssetName:  req.AssetName,
		Side:       domain.OrderSide(req.Side),
		Size:       *req.Size,
		Price:      *req.Price,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toOrderResponse(order))
}

// Get handles GET /orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

// Cancel handles POST /orders/{order_id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.CancelOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

// ListByCustomer handles GET /customers/{customer_id}/orders with optional
// start and end query parameters (RFC 3339, both or neither).
func (h *OrderHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customer_id")
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")

	var (
		orders []*domain.Order
		err    error
	)
	switch {
	case rawStart == "" && rawEnd == "":
		orders, err = h.orderSvc.ListOrders(r.Context(), customerID)
	case rawStart == "" || rawEnd == "":
		WriteError(w, http.StatusBadRequest, "validation_error", "start and end must be given together")
		return
	default:
		start, perr := time.Parse(time.RFC3339Nano, rawStart)
		if perr != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "start must be an RFC 3339 timestamp")
			return
		}
		end, perr := time.Parse(time.RFC3339Nano, rawEnd)
		if perr != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "end must be an RFC 3339 timestamp")
			return
		}
		orders, err = h.orderSvc.ListOrdersInRange(r.Context(), customerID, start, end)
	}
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"data": toOrderResponses(orders)})
}
