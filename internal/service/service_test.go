package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/events"
	"github.com/efreitasn/brokerage/internal/ledger"
	"github.com/efreitasn/brokerage/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// recordingPublisher collects events published by the services.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.Type, len(p.events))
	for i, ev := range p.events {
		types[i] = ev.Type
	}
	return types
}

// testEnv bundles all dependencies needed for service tests.
type testEnv struct {
	store     *store.Memory
	ledger    *ledger.Ledger
	customers *CustomerService
	assets    *AssetService
	orders    *OrderService
	published *recordingPublisher
}

func newTestEnv() *testEnv {
	s := store.NewMemory(time.Second)
	l := ledger.New(s, nil)
	pub := &recordingPublisher{}
	return &testEnv{
		store:     s,
		ledger:    l,
		customers: NewCustomerService(s, nil),
		assets:    NewAssetService(l),
		orders:    NewOrderService(s, l, pub, nil),
		published: pub,
	}
}

// registerCustomer registers a customer and funds the given balances
// with total == usable.
func (env *testEnv) registerCustomer(t tb, id string, balances map[string]string) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.customers.Register(ctx, RegisterCustomerRequest{CustomerID: id, Name: "Customer " + id}); err != nil {
		t.Fatalf("failed to register customer %s: %v", id, err)
	}
	for asset, amount := range balances {
		_, err := env.assets.CreateBalance(ctx, CreateBalanceRequest{
			CustomerID: id,
			AssetName:  asset,
			TotalSize:  dec(amount),
			UsableSize: dec(amount),
		})
		if err != nil {
			t.Fatalf("failed to fund %s %s: %v", id, asset, err)
		}
	}
}

func (env *testEnv) usable(t tb, customerID, asset string) decimal.Decimal {
	t.Helper()
	b, err := env.assets.GetBalance(context.Background(), customerID, asset)
	if err != nil {
		t.Fatalf("get balance %s %s: %v", customerID, asset, err)
	}
	return b.UsableSize
}

// tb is the part of testing.TB that rapid.T also provides.
type tb interface {
	Helper()
	Fatalf(format string, args ...any)
}

var _ tb = (*testing.T)(nil)

func buy(customerID, asset, size, price string) CreateOrderRequest {
	return CreateOrderRequest{CustomerID: customerID, AssetName: asset, Side: domain.OrderSideBuy, Size: dec(size), Price: dec(price)}
}

func sell(customerID, asset, size, price string) CreateOrderRequest {
	return CreateOrderRequest{CustomerID: customerID, AssetName: asset, Side: domain.OrderSideSell, Size: dec(size), Price: dec(price)}
}
