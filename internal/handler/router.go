package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/brokerage/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. A nil auth disables token checks.
func NewRouter(
	customerSvc *service.CustomerService,
	assetSvc *service.AssetService,
	orderSvc *service.OrderService,
	auth *Authenticator,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	customerH := NewCustomerHandler(customerSvc)
	assetH := NewAssetHandler(assetSvc)
	orderH := NewOrderHandler(orderSvc)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		// Administrative routes.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/customers", customerH.Register)
			r.Delete("/customers/{customer_id}", customerH.Delete)

			r.Post("/customers/{customer_id}/assets/initialize-cash", assetH.InitializeCash)
			r.Post("/customers/{customer_id}/assets", assetH.Create)
			r.Post("/customers/{customer_id}/assets/{asset_name}/validate-balance", assetH.Validate)
			r.Put("/customers/{customer_id}/assets/{asset_name}/balance", assetH.UpdateUsable)

			r.Post("/orders", orderH.Create)
			r.Get("/orders/{order_id}", orderH.Get)
			r.Post("/orders/{order_id}/cancel", orderH.Cancel)
		})

		// Reads scoped to one customer.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOwnerOrAdmin)

			r.Get("/customers/{customer_id}", customerH.Get)
			r.Get("/customers/{customer_id}/assets", assetH.List)
			r.Get("/customers/{customer_id}/assets/cash-balance", assetH.CashBalance)
			r.Get("/customers/{customer_id}/assets/{asset_name}", assetH.Get)
			r.Get("/customers/{customer_id}/orders", orderH.ListByCustomer)
		})
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests that carry a body. If the Content-Type header doesn't start
// with "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasBody := r.ContentLength != 0
		if hasBody && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
