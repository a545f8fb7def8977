package store

import (
	"time"

	"github.com/google/btree"
)

// orderKey orders a customer's orders by creation time, then order ID.
type orderKey struct {
	CreatedAt time.Time
	OrderID   string
}

func orderKeyLess(a, b orderKey) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// orderIndex is a per-customer B-tree of order keys. It is not safe for
// concurrent use; Memory guards it with its own lock.
type orderIndex struct {
	trees map[string]*btree.BTreeG[orderKey] // customer_id → keys
}

func newOrderIndex() *orderIndex {
	return &orderIndex{trees: make(map[string]*btree.BTreeG[orderKey])}
}

func (ix *orderIndex) insert(customerID string, k orderKey) {
	const degree = 16
	tree, ok := ix.trees[customerID]
	if !ok {
		tree = btree.NewG[orderKey](degree, orderKeyLess)
		ix.trees[customerID] = tree
	}
	tree.ReplaceOrInsert(k)
}

// scan calls fn for each of the customer's keys inside r, oldest first.
func (ix *orderIndex) scan(customerID string, r TimeRange, fn func(orderKey)) {
	tree, ok := ix.trees[customerID]
	if !ok {
		return
	}
	visit := func(k orderKey) bool {
		if !r.End.IsZero() && k.CreatedAt.After(r.End) {
			return false
		}
		fn(k)
		return true
	}
	if r.Start.IsZero() {
		tree.Ascend(visit)
		return
	}
	tree.AscendGreaterOrEqual(orderKey{CreatedAt: r.Start}, visit)
}
