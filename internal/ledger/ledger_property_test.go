package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

func genAmount(max int64) *rapid.Generator[decimal.Decimal] {
	return rapid.Custom(func(t *rapid.T) decimal.Decimal {
		units := rapid.Int64Range(0, max).Draw(t, "units")
		return decimal.New(units, -domain.AmountScale)
	})
}

// Any sequence of ledger operations leaves 0 <= usable <= total.
func TestProperty_InvariantHoldsUnderAnyOperationSequence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, s := newTestLedger()
		ctx := context.Background()
		total := genAmount(100_000_000).Draw(t, "total")
		registerCustomer(t, s, "C1")
		if _, err := l.CreateBalance(ctx, "C1", "BTC", total, total); err != nil {
			t.Fatalf("create balance: %v", err)
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			amount := genAmount(100_000_000).Draw(t, "amount")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				_, _ = l.ApplyDelta(ctx, "C1", "BTC", amount.Neg())
			case 1:
				_, _ = l.ApplyDelta(ctx, "C1", "BTC", amount)
			case 2:
				_, _ = l.SetUsable(ctx, "C1", "BTC", amount)
			case 3:
				o := &domain.Order{CustomerID: "C1", AssetName: "BTC", Side: domain.OrderSideSell, Size: amount}
				_ = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
					return l.Reserve(ctx, tx, o)
				})
			}

			b, err := l.Balance(ctx, "C1", "BTC")
			if err != nil {
				t.Fatalf("balance: %v", err)
			}
			if err := b.CheckInvariant(); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			if !b.TotalSize.Equal(total) {
				t.Fatalf("step %d: total size moved from %s to %s", i, total, b.TotalSize)
			}
		}
	})
}

// Reserve followed by Restore returns usable size to its exact start.
func TestProperty_ReserveRestoreRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, s := newTestLedger()
		ctx := context.Background()
		cash := genAmount(1_000_000_000).Draw(t, "cash")
		fund(t, l, s, "C1", domain.CashAsset, cash.String())

		side := rapid.SampledFrom([]domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell}).Draw(t, "side")
		o := &domain.Order{
			CustomerID: "C1",
			AssetName:  domain.CashAsset,
			Side:       side,
			Size:       genAmount(100_000).Draw(t, "size"),
			Price:      genAmount(100_000).Draw(t, "price"),
		}

		err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return l.Reserve(ctx, tx, o)
		})
		if errors.Is(err, domain.ErrInsufficientBalance) {
			if !o.Reservation().Amount.GreaterThan(cash) {
				t.Fatalf("reserve of %s against %s rejected", o.Reservation().Amount, cash)
			}
			return
		}
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}

		err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return l.Restore(ctx, tx, o)
		})
		if err != nil {
			t.Fatalf("restore: %v", err)
		}

		b, _ := l.CashBalance(ctx, "C1")
		if !b.UsableSize.Equal(cash) {
			t.Fatalf("round-trip drift: started %s, ended %s", cash, b.UsableSize)
		}
	})
}
