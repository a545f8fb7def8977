package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token's role claim.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Claims is the JWT payload accepted by the API. A USER token is bound to
// a single customer through CustomerID.
type Claims struct {
	Role       string `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// Authenticator verifies HS256 bearer tokens. A nil *Authenticator lets
// every request through, which is how the API runs without JWT_SECRET.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns nil when secret is empty.
func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret)}
}

// Parse validates a token string and returns its claims.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role != RoleAdmin && claims.Role != RoleUser {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

// Sign issues a token for claims. Used by operators and tests.
func (a *Authenticator) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate rejects requests without a valid bearer token and stores
// the claims in the request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Fields(r.Header.Get("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing or malformed bearer token")
			return
		}
		claims, err := a.Parse(parts[1])
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// RequireAdmin only lets ADMIN tokens through.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(claimsKey{}).(*Claims)
		if claims == nil || claims.Role != RoleAdmin {
			WriteError(w, http.StatusForbidden, "forbidden", "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwnerOrAdmin lets ADMIN tokens through, and USER tokens whose
// customer matches the customer_id path parameter.
func (a *Authenticator) RequireOwnerOrAdmin(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(claimsKey{}).(*Claims)
		if claims == nil {
			WriteError(w, http.StatusForbidden, "forbidden", "Access denied")
			return
		}
		if claims.Role != RoleAdmin && claims.CustomerID != chi.URLParam(r, "customer_id") {
			WriteError(w, http.StatusForbidden, "forbidden", "Access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
