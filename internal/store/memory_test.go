package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestOrder(id, customerID string, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderID:    id,
		CustomerID: customerID,
		AssetName:  "BTC",
		Side:       domain.OrderSideBuy,
		Size:       decimal.NewFromInt(2),
		Price:      decimal.NewFromInt(300),
		Status:     domain.OrderStatusPending,
		CreatedAt:  createdAt,
	}
}

func newTestBalance(customerID, asset string, total, usable int64) *domain.Balance {
	return &domain.Balance{
		CustomerID: customerID,
		AssetName:  asset,
		TotalSize:  decimal.NewFromInt(total),
		UsableSize: decimal.NewFromInt(usable),
	}
}

// insertOrders commits orders through a unit of work.
func insertOrders(t *testing.T, s *Memory, orders ...*domain.Order) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		for _, o := range orders {
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert orders: %v", err)
	}
}

func insertBalance(t *testing.T, s *Memory, b *domain.Balance) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertBalance(ctx, b)
	})
	if err != nil {
		t.Fatalf("insert balance: %v", err)
	}
}

func TestMemory_InsertCustomer_Duplicate(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()

	if err := s.InsertCustomer(ctx, &domain.Customer{CustomerID: "c1", Name: "Ada"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.InsertCustomer(ctx, &domain.Customer{CustomerID: "c1", Name: "Other"})
	if err != domain.ErrCustomerAlreadyExists {
		t.Fatalf("expected ErrCustomerAlreadyExists, got %v", err)
	}
}

func TestMemory_Customer_NotFound(t *testing.T) {
	s := NewMemory(time.Second)

	_, err := s.Customer(context.Background(), "nobody")
	if err != domain.ErrCustomerNotFound {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestMemory_DeleteCustomer_SoftDelete(t *testing.T) {
	s := NewMemory(time.Second)
	ctx := context.Background()
	_ = s.InsertCustomer(ctx, &domain.Customer{CustomerID: "c1", Name: "Ada"})

	if err := s.DeleteCustomer(ctx, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := s.Customer(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Deleted {
		t.Error("expected customer to be flagged deleted")
	}

	if err := s.DeleteCustomer(ctx, "c1"); err != domain.ErrCustomerNotFound {
		t.Fatalf("second delete: expected ErrCustomerNotFound, got %v", err)
	}
	if err := s.DeleteCustomer(ctx, "c2"); err != domain.ErrCustomerNotFound {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestMemory_InsertBalance_Duplicate(t *testing.T) {
	s := NewMemory(time.Second)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))

	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertBalance(ctx, newTestBalance("c1", "TRY", 5, 5))
	})
	if err != domain.ErrBalanceAlreadyExists {
		t.Fatalf("expected ErrBalanceAlreadyExists, got %v", err)
	}

	b, _ := s.Balance(context.Background(), "c1", "TRY")
	if !b.TotalSize.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("TotalSize = %s, want 1000", b.TotalSize)
	}
}

func TestMemory_Balance_NotFound(t *testing.T) {
	s := NewMemory(time.Second)

	if _, err := s.Balance(context.Background(), "c1", "BTC"); err != domain.ErrBalanceNotFound {
		t.Fatalf("expected ErrBalanceNotFound, got %v", err)
	}
	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.BalanceForUpdate(ctx, "c1", "BTC")
		return err
	})
	if err != domain.ErrBalanceNotFound {
		t.Fatalf("expected ErrBalanceNotFound from tx, got %v", err)
	}
}

func TestMemory_Balances_SortedByAsset(t *testing.T) {
	s := NewMemory(time.Second)
	insertBalance(t, s, newTestBalance("c1", "TRY", 10, 10))
	insertBalance(t, s, newTestBalance("c1", "BTC", 1, 1))
	insertBalance(t, s, newTestBalance("c2", "ETH", 1, 1))

	got, err := s.Balances(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].AssetName != "BTC" || got[1].AssetName != "TRY" {
		t.Fatalf("unexpected balances: %+v", got)
	}

	none, _ := s.Balances(context.Background(), "nobody")
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", none)
	}
}

func TestMemory_InTx_RollbackOnError(t *testing.T) {
	s := NewMemory(time.Second)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		b, err := tx.BalanceForUpdate(ctx, "c1", "TRY")
		if err != nil {
			return err
		}
		b.UsableSize = decimal.NewFromInt(400)
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, newTestOrder("o1", "c1", time.Now())); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected boom, got %v", err)
	}

	b, _ := s.Balance(context.Background(), "c1", "TRY")
	if !b.UsableSize.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("UsableSize = %s, want 1000 after rollback", b.UsableSize)
	}
	if _, err := s.Order(context.Background(), "o1"); err != domain.ErrOrderNotFound {
		t.Errorf("order should not exist after rollback, got %v", err)
	}
	orders, _ := s.Orders(context.Background(), "c1", TimeRange{})
	if len(orders) != 0 {
		t.Errorf("expected no indexed orders after rollback, got %d", len(orders))
	}
	if n := s.locks.size(); n != 0 {
		t.Errorf("expected all locks released, %d still tracked", n)
	}
}

func TestMemory_InTx_CanceledContextDiscardsWrites(t *testing.T) {
	s := NewMemory(time.Second)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))

	ctx, cancel := context.WithCancel(context.Background())
	err := s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.BalanceForUpdate(ctx, "c1", "TRY")
		if err != nil {
			return err
		}
		b.UsableSize = decimal.Zero
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	b, _ := s.Balance(context.Background(), "c1", "TRY")
	if !b.UsableSize.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("UsableSize = %s, want 1000", b.UsableSize)
	}
}

func TestMemory_InTx_UncommittedWritesInvisible(t *testing.T) {
	s := NewMemory(time.Second)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))

	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		b, _ := tx.BalanceForUpdate(ctx, "c1", "TRY")
		b.UsableSize = decimal.NewFromInt(1)
		_ = tx.UpdateBalance(ctx, b)

		outside, _ := s.Balance(ctx, "c1", "TRY")
		if !outside.UsableSize.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("outside reader saw %s before commit", outside.UsableSize)
		}
		inside, _ := tx.BalanceForUpdate(ctx, "c1", "TRY")
		if !inside.UsableSize.Equal(decimal.NewFromInt(1)) {
			t.Errorf("tx should read its own write, got %s", inside.UsableSize)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemory_BalanceForUpdate_TimesOut(t *testing.T) {
	s := NewMemory(50 * time.Millisecond)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.BalanceForUpdate(ctx, "c1", "TRY"); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked
	defer close(done)

	start := time.Now()
	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.BalanceForUpdate(ctx, "c1", "TRY")
		return err
	})
	if err != domain.ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("lock wait was not bounded: %v", time.Since(start))
	}
}

func TestMemory_DifferentAssetsDoNotContend(t *testing.T) {
	s := NewMemory(50 * time.Millisecond)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))
	insertBalance(t, s, newTestBalance("c1", "BTC", 5, 5))

	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, err := tx.BalanceForUpdate(ctx, "c1", "TRY"); err != nil {
			return err
		}
		return s.InTx(ctx, func(ctx context.Context, inner Tx) error {
			_, err := inner.BalanceForUpdate(ctx, "c1", "BTC")
			return err
		})
	})
	if err != nil {
		t.Fatalf("cross-asset lock should not block: %v", err)
	}
}

func TestMemory_Orders_ChronologicalAndRange(t *testing.T) {
	s := NewMemory(time.Second)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order to exercise the index.
	for _, i := range []int{3, 0, 4, 1, 2} {
		insertOrders(t, s, newTestOrder(fmt.Sprintf("order-%d", i), "c1", base.Add(time.Duration(i)*time.Minute)))
	}

	all, err := s.Orders(context.Background(), "c1", TimeRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 orders, got %d", len(all))
	}
	for i := 0; i < len(all)-1; i++ {
		if !all[i].CreatedAt.Before(all[i+1].CreatedAt) {
			t.Fatalf("orders not in chronological order at index %d", i)
		}
	}

	// Both bounds inclusive.
	ranged, _ := s.Orders(context.Background(), "c1", TimeRange{
		Start: base.Add(1 * time.Minute),
		End:   base.Add(3 * time.Minute),
	})
	if len(ranged) != 3 {
		t.Fatalf("expected 3 orders in range, got %d", len(ranged))
	}
	if ranged[0].OrderID != "order-1" || ranged[2].OrderID != "order-3" {
		t.Errorf("unexpected range result: %s..%s", ranged[0].OrderID, ranged[2].OrderID)
	}

	openEnded, _ := s.Orders(context.Background(), "c1", TimeRange{Start: base.Add(4 * time.Minute)})
	if len(openEnded) != 1 {
		t.Errorf("expected 1 order from start bound, got %d", len(openEnded))
	}
}

func TestMemory_Orders_EmptyCustomer(t *testing.T) {
	s := NewMemory(time.Second)

	orders, err := s.Orders(context.Background(), "no-such-customer", TimeRange{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orders == nil || len(orders) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", orders)
	}
}

func TestMemory_UpdateOrder_StatusVisibleAfterCommit(t *testing.T) {
	s := NewMemory(time.Second)
	insertOrders(t, s, newTestOrder("o1", "c1", time.Now()))

	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, "o1")
		if err != nil {
			return err
		}
		o.Status = domain.OrderStatusCanceled
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o, _ := s.Order(context.Background(), "o1")
	if o.Status != domain.OrderStatusCanceled {
		t.Errorf("Status = %s, want CANCELED", o.Status)
	}
	listed, _ := s.Orders(context.Background(), "c1", TimeRange{})
	if len(listed) != 1 || listed[0].Status != domain.OrderStatusCanceled {
		t.Errorf("listing should reflect the update, got %+v", listed)
	}
}

func TestMemory_ReturnedRecordsAreCopies(t *testing.T) {
	s := NewMemory(time.Second)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))

	b, _ := s.Balance(context.Background(), "c1", "TRY")
	b.UsableSize = decimal.Zero

	again, _ := s.Balance(context.Background(), "c1", "TRY")
	if !again.UsableSize.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("store state leaked through returned pointer: %s", again.UsableSize)
	}
}

func TestMemory_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := NewMemory(5 * time.Second)
	insertBalance(t, s, newTestBalance("c1", "TRY", 1000, 1000))
	var wg sync.WaitGroup

	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
				b, err := tx.BalanceForUpdate(ctx, "c1", "TRY")
				if err != nil {
					return err
				}
				next, err := b.WithDelta(decimal.NewFromInt(-60))
				if err != nil {
					return err
				}
				return tx.UpdateBalance(ctx, next)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 1000 / 60 = 16 debits fit.
	if succeeded != 16 {
		t.Errorf("expected 16 successful debits, got %d", succeeded)
	}
	b, _ := s.Balance(context.Background(), "c1", "TRY")
	if !b.UsableSize.Equal(decimal.NewFromInt(40)) {
		t.Errorf("UsableSize = %s, want 40", b.UsableSize)
	}
}

func TestTimeRange_Contains(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := TimeRange{Start: base, End: base.Add(time.Hour)}

	if !r.Contains(base) || !r.Contains(base.Add(time.Hour)) {
		t.Error("bounds should be inclusive")
	}
	if r.Contains(base.Add(-time.Nanosecond)) || r.Contains(base.Add(time.Hour+time.Nanosecond)) {
		t.Error("values outside the bounds should be excluded")
	}
	if !(TimeRange{}).Contains(base) {
		t.Error("zero range should contain everything")
	}
}
