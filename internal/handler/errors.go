package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/efreitasn/brokerage/internal/domain"
)

// mapError writes the HTTP response for an error returned by a service.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrCustomerNotFound):
		WriteError(w, http.StatusNotFound, "customer_not_found", "Customer not found")
	case errors.Is(err, domain.ErrBalanceNotFound):
		WriteError(w, http.StatusNotFound, "balance_not_found", "Balance not found")
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, domain.ErrCustomerAlreadyExists):
		WriteError(w, http.StatusConflict, "customer_already_exists", "Customer already exists")
	case errors.Is(err, domain.ErrBalanceAlreadyExists):
		WriteError(w, http.StatusConflict, "balance_already_exists", "Balance already exists")
	case errors.Is(err, domain.ErrOrderNotPending):
		WriteError(w, http.StatusConflict, "order_not_pending", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		WriteError(w, http.StatusConflict, "insufficient_balance", err.Error())
	case errors.Is(err, domain.ErrLockTimeout):
		WriteError(w, http.StatusServiceUnavailable, "lock_timeout", "Balance is busy, retry later")
	case errors.Is(err, domain.ErrInvariantViolation):
		slog.Error("invariant violation", "error", err)
		WriteError(w, http.StatusInternalServerError, "invariant_violation", "An unexpected error occurred")
	default:
		slog.Error("unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
