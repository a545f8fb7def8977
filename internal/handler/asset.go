package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/service"
)

// AssetHandler handles HTTP requests for customer balance endpoints.
type AssetHandler struct {
	assetSvc *service.AssetService
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(assetSvc *service.AssetService) *AssetHandler {
	return &AssetHandler{assetSvc: assetSvc}
}

// createBalanceRequest is the JSON request body for POST /customers/{customer_id}/assets.
type createBalanceRequest struct {
	AssetName  string           `json:"asset_name"`
	TotalSize  *decimal.Decimal `json:"total_size"`
	UsableSize *decimal.Decimal `json:"usable_size"`
}

// updateBalanceRequest is the JSON request body for the usable size override.
type updateBalanceRequest struct {
	UsableSize *decimal.Decimal `json:"usable_size"`
}

// InitializeCash handles POST /customers/{customer_id}/assets/initialize-cash.
// It returns 201 when the balance is created and 200 when it already existed.
func (h *AssetHandler) InitializeCash(w http.ResponseWriter, r *http.Request) {
	b, created, err := h.assetSvc.InitializeCashBalance(r.Context(), chi.URLParam(r, "customer_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, toBalanceResponse(b))
}

// Create handles POST /customers/{customer_id}/assets.
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBalanceRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.TotalSize == nil || req.UsableSize == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "total_size and usable_size are required")
		return
	}

	b, err := h.assetSvc.CreateBalance(r.Context(), service.CreateBalanceRequest{
		CustomerID: chi.URLParam(r, "customer_id"),
		AssetName:  req.AssetName,
		TotalSize:  *req.TotalSize,
		UsableSize: *req.UsableSize,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toBalanceResponse(b))
}

// List handles GET /customers/{customer_id}/assets.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	balances, err := h.assetSvc.ListBalances(r.Context(), chi.URLParam(r, "customer_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	resp := make([]balanceResponse, len(balances))
	for i, b := range balances {
		resp[i] = toBalanceResponse(b)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": resp})
}

// CashBalance handles GET /customers/{customer_id}/assets/cash-balance.
func (h *AssetHandler) CashBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.assetSvc.GetCashBalance(r.Context(), chi.URLParam(r, "customer_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toBalanceResponse(b))
}

// Get handles GET /customers/{customer_id}/assets/{asset_name}.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.assetSvc.GetBalance(r.Context(), chi.URLParam(r, "customer_id"), chi.URLParam(r, "asset_name"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toBalanceResponse(b))
}

// Validate handles POST /customers/{customer_id}/assets/{asset_name}/validate-balance?amount=.
func (h *AssetHandler) Validate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("amount")
	if raw == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "amount query parameter is required")
		return
	}
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	customerID := chi.URLParam(r, "customer_id")
	assetName := chi.URLParam(r, "asset_name")
	if err := h.assetSvc.ValidateBalance(r.Context(), customerID, assetName, amount); err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"customer_id": customerID,
		"asset_name":  assetName,
		"amount":      amount,
		"sufficient":  true,
	})
}

// UpdateUsable handles PUT /customers/{customer_id}/assets/{asset_name}/balance.
func (h *AssetHandler) UpdateUsable(w http.ResponseWriter, r *http.Request) {
	var req updateBalanceRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.UsableSize == nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "usable_size is required")
		return
	}

	b, err := h.assetSvc.UpdateBalance(r.Context(), chi.URLParam(r, "customer_id"), chi.URLParam(r, "asset_name"), *req.UsableSize)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toBalanceResponse(b))
}
