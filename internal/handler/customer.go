package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/brokerage/internal/service"
)

// CustomerHandler handles HTTP requests for customer endpoints.
type CustomerHandler struct {
	customerSvc *service.CustomerService
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(customerSvc *service.CustomerService) *CustomerHandler {
	return &CustomerHandler{customerSvc: customerSvc}
}

// registerCustomerRequest is the JSON request body for POST /customers.
type registerCustomerRequest struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
}

// Register handles POST /customers.
func (h *CustomerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerCustomerRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	c, err := h.customerSvc.Register(r.Context(), service.RegisterCustomerRequest{
		CustomerID: req.CustomerID,
		Name:       req.Name,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toCustomerResponse(c))
}

// Get handles GET /customers/{customer_id}.
func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.customerSvc.Get(r.Context(), chi.URLParam(r, "customer_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCustomerResponse(c))
}

// Delete handles DELETE /customers/{customer_id}.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.customerSvc.Delete(r.Context(), chi.URLParam(r, "customer_id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
