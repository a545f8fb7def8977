package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/brokerage/internal/domain"
)

// DefaultLockTimeout bounds how long a unit of work waits for a lock.
const DefaultLockTimeout = 5 * time.Second

type balanceKey struct {
	customerID string
	assetName  string
}

func (k balanceKey) lockKey() string {
	return "balance/" + k.customerID + "/" + k.assetName
}

func orderLockKey(orderID string) string {
	return "order/" + orderID
}

// Memory is a thread-safe in-memory Store. Every record is copied on the
// way in and out, so callers never share state with the store.
type Memory struct {
	mu          sync.RWMutex
	customers   map[string]*domain.Customer
	balances    map[balanceKey]*domain.Balance
	orders      map[string]*domain.Order
	index       *orderIndex
	locks       *keyLocks
	lockTimeout time.Duration
}

// NewMemory creates an empty Memory store. A non-positive lockTimeout
// falls back to DefaultLockTimeout.
func NewMemory(lockTimeout time.Duration) *Memory {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Memory{
		customers:   make(map[string]*domain.Customer),
		balances:    make(map[balanceKey]*domain.Balance),
		orders:      make(map[string]*domain.Order),
		index:       newOrderIndex(),
		locks:       newKeyLocks(),
		lockTimeout: lockTimeout,
	}
}

// InTx implements Store. Writes are buffered in the transaction and
// applied under the store lock in one step at commit.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		m:        m,
		held:     make(map[string]bool),
		balances: make(map[balanceKey]*domain.Balance),
		orders:   make(map[string]*domain.Order),
	}
	defer tx.releaseAll()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	// A caller that went away before the commit gets nothing applied.
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// InsertCustomer returns domain.ErrCustomerAlreadyExists on duplicates.
func (m *Memory) InsertCustomer(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.customers[c.CustomerID]; exists {
		return domain.ErrCustomerAlreadyExists
	}
	cp := *c
	m.customers[c.CustomerID] = &cp
	return nil
}

// DeleteCustomer implements Store.
func (m *Memory) DeleteCustomer(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.customers[customerID]
	if !exists || c.Deleted {
		return domain.ErrCustomerNotFound
	}
	cp := *c
	cp.Deleted = true
	m.customers[customerID] = &cp
	return nil
}

// Customer returns domain.ErrCustomerNotFound if the customer does not exist.
func (m *Memory) Customer(_ context.Context, customerID string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[customerID]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

// Balance returns the committed balance for the pair, or
// domain.ErrBalanceNotFound.
func (m *Memory) Balance(_ context.Context, customerID, assetName string) (*domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.balances[balanceKey{customerID, assetName}]
	if !ok {
		return nil, domain.ErrBalanceNotFound
	}
	return b.Clone(), nil
}

// Balances returns the customer's balances ordered by asset name.
func (m *Memory) Balances(_ context.Context, customerID string) ([]*domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Balance, 0)
	for k, b := range m.balances {
		if k.customerID == customerID {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AssetName < result[j].AssetName
	})
	return result, nil
}

// Order returns domain.ErrOrderNotFound if the order does not exist.
func (m *Memory) Order(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// Orders returns the customer's orders created within r, oldest first.
func (m *Memory) Orders(_ context.Context, customerID string, r TimeRange) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Order, 0)
	m.index.scan(customerID, r, func(k orderKey) {
		if o, ok := m.orders[k.OrderID]; ok {
			result = append(result, o.Clone())
		}
	})
	return result, nil
}

// Close implements Store. It is a no-op for Memory.
func (m *Memory) Close() error {
	return nil
}

var _ Store = (*Memory)(nil)

// memTx buffers writes until commit and holds its locks until the
// enclosing InTx returns.
type memTx struct {
	m        *Memory
	held     map[string]bool
	balances map[balanceKey]*domain.Balance
	orders   map[string]*domain.Order
	inserted []string // order IDs new to the index
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if tx.held[key] {
		return nil
	}
	if err := tx.m.locks.acquire(ctx, key, tx.m.lockTimeout); err != nil {
		return err
	}
	tx.held[key] = true
	return nil
}

func (tx *memTx) releaseAll() {
	for key := range tx.held {
		tx.m.locks.release(key)
	}
	tx.held = nil
}

func (tx *memTx) commit() {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()

	for k, b := range tx.balances {
		tx.m.balances[k] = b
	}
	for id, o := range tx.orders {
		tx.m.orders[id] = o
	}
	for _, id := range tx.inserted {
		o := tx.orders[id]
		tx.m.index.insert(o.CustomerID, orderKey{CreatedAt: o.CreatedAt, OrderID: o.OrderID})
	}
}

func (tx *memTx) Customer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return tx.m.Customer(ctx, customerID)
}

func (tx *memTx) BalanceForUpdate(ctx context.Context, customerID, assetName string) (*domain.Balance, error) {
	k := balanceKey{customerID, assetName}
	if err := tx.lock(ctx, k.lockKey()); err != nil {
		return nil, err
	}
	if b, ok := tx.balances[k]; ok {
		return b.Clone(), nil
	}
	return tx.m.Balance(ctx, customerID, assetName)
}

func (tx *memTx) InsertBalance(ctx context.Context, b *domain.Balance) error {
	k := balanceKey{b.CustomerID, b.AssetName}
	if err := tx.lock(ctx, k.lockKey()); err != nil {
		return err
	}
	if _, ok := tx.balances[k]; ok {
		return domain.ErrBalanceAlreadyExists
	}
	if _, err := tx.m.Balance(ctx, b.CustomerID, b.AssetName); err == nil {
		return domain.ErrBalanceAlreadyExists
	}
	tx.balances[k] = b.Clone()
	return nil
}

func (tx *memTx) UpdateBalance(ctx context.Context, b *domain.Balance) error {
	k := balanceKey{b.CustomerID, b.AssetName}
	if err := tx.lock(ctx, k.lockKey()); err != nil {
		return err
	}
	if _, ok := tx.balances[k]; !ok {
		if _, err := tx.m.Balance(ctx, b.CustomerID, b.AssetName); err != nil {
			return err
		}
	}
	tx.balances[k] = b.Clone()
	return nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	if err := tx.lock(ctx, orderLockKey(o.OrderID)); err != nil {
		return err
	}
	tx.orders[o.OrderID] = o.Clone()
	tx.inserted = append(tx.inserted, o.OrderID)
	return nil
}

func (tx *memTx) OrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := tx.lock(ctx, orderLockKey(orderID)); err != nil {
		return nil, err
	}
	if o, ok := tx.orders[orderID]; ok {
		return o.Clone(), nil
	}
	return tx.m.Order(ctx, orderID)
}

func (tx *memTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	if err := tx.lock(ctx, orderLockKey(o.OrderID)); err != nil {
		return err
	}
	if _, ok := tx.orders[o.OrderID]; !ok {
		if _, err := tx.m.Order(ctx, o.OrderID); err != nil {
			return err
		}
	}
	tx.orders[o.OrderID] = o.Clone()
	return nil
}
