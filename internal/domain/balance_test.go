package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBalance_CheckInvariant(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		usable  string
		wantErr bool
	}{
		{"zero", "0", "0", false},
		{"fully usable", "1000", "1000", false},
		{"partly reserved", "1000", "400", false},
		{"fractional", "10.5", "0.0001", false},
		{"negative usable", "1000", "-0.0001", true},
		{"usable above total", "1000", "1000.0001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Balance{AssetName: CashAsset, TotalSize: dec(tt.total), UsableSize: dec(tt.usable)}
			err := b.CheckInvariant()
			if tt.wantErr {
				if !errors.Is(err, ErrInvariantViolation) {
					t.Errorf("CheckInvariant() = %v, want ErrInvariantViolation", err)
				}
				return
			}
			if err != nil {
				t.Errorf("CheckInvariant() unexpected error: %v", err)
			}
		})
	}
}

func TestBalance_WithDelta_Debit(t *testing.T) {
	b := &Balance{CustomerID: "c1", AssetName: CashAsset, TotalSize: dec("1000"), UsableSize: dec("1000")}

	next, err := b.WithDelta(dec("-600"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.UsableSize.Equal(dec("400")) {
		t.Errorf("UsableSize = %s, want 400", next.UsableSize)
	}
	if !b.UsableSize.Equal(dec("1000")) {
		t.Errorf("receiver mutated: UsableSize = %s, want 1000", b.UsableSize)
	}
	if !next.TotalSize.Equal(dec("1000")) {
		t.Errorf("TotalSize = %s, want 1000", next.TotalSize)
	}
}

func TestBalance_WithDelta_Overdraw(t *testing.T) {
	b := &Balance{AssetName: "BTC", TotalSize: dec("5"), UsableSize: dec("2")}

	if _, err := b.WithDelta(dec("-2.0001")); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("got %v, want ErrInvariantViolation", err)
	}
}

func TestBalance_WithDelta_CreditAboveTotal(t *testing.T) {
	b := &Balance{AssetName: "BTC", TotalSize: dec("5"), UsableSize: dec("5")}

	if _, err := b.WithDelta(dec("1")); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("got %v, want ErrInvariantViolation", err)
	}
}

func TestCustomer_Active(t *testing.T) {
	var missing *Customer
	if missing.Active() {
		t.Error("nil customer should not be active")
	}
	if !(&Customer{CustomerID: "c1"}).Active() {
		t.Error("customer should be active")
	}
	if (&Customer{CustomerID: "c1", Deleted: true}).Active() {
		t.Error("soft-deleted customer should not be active")
	}
}
