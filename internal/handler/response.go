package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// Amounts are encoded as JSON strings so no precision is lost.
type customerResponse struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Deleted    bool   `json:"deleted"`
	CreatedAt  string `json:"created_at"`
}

type balanceResponse struct {
	CustomerID string          `json:"customer_id"`
	AssetName  string          `json:"asset_name"`
	TotalSize  decimal.Decimal `json:"total_size"`
	UsableSize decimal.Decimal `json:"usable_size"`
	UpdatedAt  string          `json:"updated_at"`
}

type orderResponse struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	AssetName  string          `json:"asset_name"`
	Side       string          `json:"side"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
	Status     string          `json:"status"`
	CreatedAt  string          `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toCustomerResponse(c *domain.Customer) customerResponse {
	return customerResponse{
		CustomerID: c.CustomerID,
		Name:       c.Name,
		Deleted:    c.Deleted,
		CreatedAt:  formatTime(c.CreatedAt),
	}
}

func toBalanceResponse(b *domain.Balance) balanceResponse {
	return balanceResponse{
		CustomerID: b.CustomerID,
		AssetName:  b.AssetName,
		TotalSize:  b.TotalSize,
		UsableSize: b.UsableSize,
		UpdatedAt:  formatTime(b.UpdatedAt),
	}
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderID:    o.OrderID,
		CustomerID: o.CustomerID,
		AssetName:  o.AssetName,
		Side:       string(o.Side),
		Size:       o.Size,
		Price:      o.Price,
		Status:     string(o.Status),
		CreatedAt:  formatTime(o.CreatedAt),
	}
}

func toOrderResponses(orders []*domain.Order) []orderResponse {
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	return resp
}
