package domain

import "time"

// Customer is the owner of balances and orders. Deletion only flips
// Deleted; balances and orders are never removed with it.
type Customer struct {
	CustomerID string
	Name       string
	Deleted    bool
	CreatedAt  time.Time
}

// Active reports whether the customer exists and has not been soft-deleted.
func (c *Customer) Active() bool {
	return c != nil && !c.Deleted
}
