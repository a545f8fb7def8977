package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/ledger"
)

var assetNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,32}$`)

// reservedAssetNames collide with fixed segments under
// /customers/{customer_id}/assets.
var reservedAssetNames = map[string]bool{
	"cash-balance":    true,
	"initialize-cash": true,
}

// CreateBalanceRequest represents the input for creating an asset balance.
type CreateBalanceRequest struct {
	CustomerID string
	AssetName  string
	TotalSize  decimal.Decimal
	UsableSize decimal.Decimal
}

// AssetService exposes the ledger's balance operations with request
// validation in front of them.
type AssetService struct {
	ledger *ledger.Ledger
}

// NewAssetService creates a new AssetService.
func NewAssetService(l *ledger.Ledger) *AssetService {
	return &AssetService{ledger: l}
}

// InitializeCashBalance creates the customer's zero cash balance. It is
// idempotent; created reports whether this call created it.
func (s *AssetService) InitializeCashBalance(ctx context.Context, customerID string) (*domain.Balance, bool, error) {
	return s.ledger.CreateInitialCashBalance(ctx, customerID)
}

// CreateBalance creates a balance for a new (customer, asset) pair.
func (s *AssetService) CreateBalance(ctx context.Context, req CreateBalanceRequest) (*domain.Balance, error) {
	if err := validateAssetName(req.AssetName); err != nil {
		return nil, err
	}
	return s.ledger.CreateBalance(ctx, req.CustomerID, req.AssetName, req.TotalSize, req.UsableSize)
}

// GetCashBalance returns the customer's cash balance, or
// domain.ErrBalanceNotFound if it was never initialized.
func (s *AssetService) GetCashBalance(ctx context.Context, customerID string) (*domain.Balance, error) {
	return s.ledger.CashBalance(ctx, customerID)
}

// GetBalance returns the balance for the pair, or domain.ErrBalanceNotFound.
func (s *AssetService) GetBalance(ctx context.Context, customerID, assetName string) (*domain.Balance, error) {
	return s.ledger.Balance(ctx, customerID, assetName)
}

// ListBalances returns the customer's balances ordered by asset name.
func (s *AssetService) ListBalances(ctx context.Context, customerID string) ([]*domain.Balance, error) {
	return s.ledger.Balances(ctx, customerID)
}

// ValidateBalance reports whether the pair can cover amount. It never
// changes the balance.
func (s *AssetService) ValidateBalance(ctx context.Context, customerID, assetName string, amount decimal.Decimal) error {
	if err := domain.CheckAmount(amount); err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}
	return s.ledger.ValidateSufficient(ctx, customerID, assetName, amount)
}

// UpdateBalance is the administrative override of a balance's usable size.
func (s *AssetService) UpdateBalance(ctx context.Context, customerID, assetName string, usable decimal.Decimal) (*domain.Balance, error) {
	if err := domain.CheckAmount(usable); err != nil {
		return nil, &domain.ValidationError{Message: "usable_size: " + err.Error()}
	}
	return s.ledger.SetUsable(ctx, customerID, assetName, usable)
}

func validateAssetName(name string) error {
	if !assetNameRegex.MatchString(name) {
		return &domain.ValidationError{Message: "asset_name must match ^[A-Za-z0-9_.-]{1,32}$"}
	}
	if reservedAssetNames[strings.ToLower(name)] {
		return &domain.ValidationError{Message: fmt.Sprintf("asset_name %q is reserved", name)}
	}
	return nil
}
