// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	customer_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	deleted     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS balances (
	customer_id TEXT NOT NULL,
	asset_name  TEXT NOT NULL,
	total_size  NUMERIC(19,4) NOT NULL,
	usable_size NUMERIC(19,4) NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (customer_id, asset_name),
	CHECK (usable_size >= 0 AND usable_size <= total_size)
);

CREATE TABLE IF NOT EXISTS orders (
	order_id    TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	asset_name  TEXT NOT NULL,
	side        TEXT NOT NULL,
	size        NUMERIC(19,4) NOT NULL,
	price       NUMERIC(19,4) NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_customer_created_idx ON orders (customer_id, created_at, order_id);
`

// SQLSTATE codes mapped to domain errors.
const (
	codeUniqueViolation  = "23505"
	codeCheckViolation   = "23514"
	codeLockNotAvailable = "55P03"
)

// Store is a PostgreSQL-backed store.Store. Row locks are taken with
// SELECT ... FOR UPDATE and bounded by lock_timeout.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	logger      *slog.Logger
}

// Open connects to databaseURL, verifies the connection, and creates the
// schema if it does not exist yet.
func Open(ctx context.Context, databaseURL string, lockTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTimeout <= 0 {
		lockTimeout = store.DefaultLockTimeout
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("connected to postgres", "lock_timeout", lockTimeout)
	return &Store{pool: pool, lockTimeout: lockTimeout, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.Background())
		}
	}()

	// SET cannot take bind parameters.
	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, lockTimeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}

func (s *Store) InsertCustomer(ctx context.Context, c *domain.Customer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (customer_id, name, deleted, created_at)
		VALUES ($1, $2, $3, $4)
	`, c.CustomerID, c.Name, c.Deleted, c.CreatedAt)
	if isCode(err, codeUniqueViolation) {
		return domain.ErrCustomerAlreadyExists
	}
	return err
}

// DeleteCustomer only matches active rows, so of two concurrent deletes
// exactly one affects a row.
func (s *Store) DeleteCustomer(ctx context.Context, customerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE customers SET deleted = TRUE WHERE customer_id = $1 AND deleted = FALSE
	`, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func (s *Store) Customer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return getCustomer(ctx, s.pool, customerID)
}

func (s *Store) Balance(ctx context.Context, customerID, assetName string) (*domain.Balance, error) {
	row := s.pool.QueryRow(ctx, selectBalance+` WHERE customer_id = $1 AND asset_name = $2`, customerID, assetName)
	return scanBalance(row)
}

func (s *Store) Balances(ctx context.Context, customerID string) ([]*domain.Balance, error) {
	rows, err := s.pool.Query(ctx, selectBalance+` WHERE customer_id = $1 ORDER BY asset_name`, customerID)
	if err != nil {
		return nil, fmt.Errorf("query balances for %s: %w", customerID, err)
	}
	defer rows.Close()

	balances := make([]*domain.Balance, 0)
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances for %s: %w", customerID, err)
	}
	return balances, nil
}

func (s *Store) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, selectOrder+` WHERE order_id = $1`, orderID)
	return scanOrder(row)
}

func (s *Store) Orders(ctx context.Context, customerID string, r store.TimeRange) ([]*domain.Order, error) {
	query := selectOrder + ` WHERE customer_id = $1`
	args := []any{customerID}
	if !r.Start.IsZero() {
		args = append(args, r.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !r.End.IsZero() {
		args = append(args, r.End)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += ` ORDER BY created_at, order_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders for %s: %w", customerID, err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders for %s: %w", customerID, err)
	}
	return orders, nil
}

var _ store.Store = (*Store)(nil)

// pgTx adapts a pgx.Tx to store.Tx.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Customer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return getCustomer(ctx, t.tx, customerID)
}

func (t *pgTx) BalanceForUpdate(ctx context.Context, customerID, assetName string) (*domain.Balance, error) {
	row := t.tx.QueryRow(ctx, selectBalance+` WHERE customer_id = $1 AND asset_name = $2 FOR UPDATE`, customerID, assetName)
	return scanBalance(row)
}

func (t *pgTx) InsertBalance(ctx context.Context, b *domain.Balance) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO balances (customer_id, asset_name, total_size, usable_size, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, b.CustomerID, b.AssetName, b.TotalSize.String(), b.UsableSize.String(), updatedAt(b.UpdatedAt))
	if isCode(err, codeUniqueViolation) {
		return domain.ErrBalanceAlreadyExists
	}
	return mapError(err)
}

func (t *pgTx) UpdateBalance(ctx context.Context, b *domain.Balance) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE balances SET total_size = $3, usable_size = $4, updated_at = $5
		WHERE customer_id = $1 AND asset_name = $2
	`, b.CustomerID, b.AssetName, b.TotalSize.String(), b.UsableSize.String(), updatedAt(b.UpdatedAt))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrBalanceNotFound
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (order_id, customer_id, asset_name, side, size, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, o.OrderID, o.CustomerID, o.AssetName, string(o.Side), o.Size.String(), o.Price.String(), string(o.Status), o.CreatedAt)
	return mapError(err)
}

func (t *pgTx) OrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	row := t.tx.QueryRow(ctx, selectOrder+` WHERE order_id = $1 FOR UPDATE`, orderID)
	return scanOrder(row)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE order_id = $1`, o.OrderID, string(o.Status))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() != 1 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	selectBalance = `SELECT customer_id, asset_name, total_size::text, usable_size::text, updated_at FROM balances`
	selectOrder   = `SELECT order_id, customer_id, asset_name, side, size::text, price::text, status, created_at FROM orders`
)

func getCustomer(ctx context.Context, q querier, customerID string) (*domain.Customer, error) {
	c := &domain.Customer{}
	err := q.QueryRow(ctx, `
		SELECT customer_id, name, deleted, created_at FROM customers WHERE customer_id = $1
	`, customerID).Scan(&c.CustomerID, &c.Name, &c.Deleted, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", customerID, err)
	}
	return c, nil
}

func scanBalance(row pgx.Row) (*domain.Balance, error) {
	b := &domain.Balance{}
	var total, usable string
	err := row.Scan(&b.CustomerID, &b.AssetName, &total, &usable, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	if b.TotalSize, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total size: %w", err)
	}
	if b.UsableSize, err = decimal.NewFromString(usable); err != nil {
		return nil, fmt.Errorf("parse usable size: %w", err)
	}
	return b, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var side, status, size, price string
	err := row.Scan(&o.OrderID, &o.CustomerID, &o.AssetName, &side, &size, &price, &status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	if o.Size, err = decimal.NewFromString(size); err != nil {
		return nil, fmt.Errorf("parse order size: %w", err)
	}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse order price: %w", err)
	}
	return o, nil
}

// mapError translates lock and constraint failures into domain errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case isCode(err, codeLockNotAvailable):
		return domain.ErrLockTimeout
	case isCode(err, codeCheckViolation):
		return fmt.Errorf("%w: %v", domain.ErrInvariantViolation, err)
	default:
		return err
	}
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
