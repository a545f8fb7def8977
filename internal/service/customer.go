package service

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

var customerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// RegisterCustomerRequest represents the input for customer registration.
// An empty CustomerID is replaced with a generated one.
type RegisterCustomerRequest struct {
	CustomerID string
	Name       string
}

// CustomerService handles customer registration, lookup and soft deletion.
type CustomerService struct {
	store  store.Store
	logger *slog.Logger
}

// NewCustomerService creates a new CustomerService.
func NewCustomerService(s store.Store, logger *slog.Logger) *CustomerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerService{store: s, logger: logger}
}

// Register validates the request and stores a new customer.
func (s *CustomerService) Register(ctx context.Context, req RegisterCustomerRequest) (*domain.Customer, error) {
	if req.CustomerID == "" {
		req.CustomerID = uuid.New().String()
	}
	if !customerIDRegex.MatchString(req.CustomerID) {
		return nil, &domain.ValidationError{Message: "customer_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 128 {
		return nil, &domain.ValidationError{Message: "name must be between 1 and 128 characters"}
	}

	c := &domain.Customer{
		CustomerID: req.CustomerID,
		Name:       name,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.InsertCustomer(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("customer registered", "customer_id", c.CustomerID)
	return c, nil
}

// Get returns the customer, including soft-deleted ones.
func (s *CustomerService) Get(ctx context.Context, customerID string) (*domain.Customer, error) {
	return s.store.Customer(ctx, customerID)
}

// Delete flags the customer as deleted. Balances and orders are kept.
// Deleting an already deleted customer returns domain.ErrCustomerNotFound.
func (s *CustomerService) Delete(ctx context.Context, customerID string) error {
	if err := s.store.DeleteCustomer(ctx, customerID); err != nil {
		return err
	}

	s.logger.Info("customer soft-deleted", "customer_id", customerID)
	return nil
}
