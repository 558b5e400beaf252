// Package pgstore implements core.Store on PostgreSQL with pgx.
//
// All SQL is generated from the table registry: each write is an
// INSERT ... ON CONFLICT on the table's natural key, so concurrent batches
// converge on one row per key.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/shopflow/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs the generated statements against db.
type Queries struct {
	db     DBTX
	tables map[string]statements
}

// New prepares statements for every registered table. The loader tables must
// be registered, usually by importing internal/core/tables.
func New(db DBTX) (*Queries, error) {
	defs, err := core.Tables()
	if err != nil {
		return nil, err
	}

	tables := make(map[string]statements, len(defs))
	for _, def := range defs {
		tables[def.Info.Key] = buildStatements(def)
	}
	return &Queries{db: db, tables: tables}, nil
}

// WithTx returns a copy of q that runs on tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx, tables: q.tables}
}

func (q *Queries) exec(ctx context.Context, key, sql string, params any) error {
	values := q.tables[key].def.RowValues(params)
	_, err := q.db.Exec(ctx, sql, args(values)...)
	return err
}

func (q *Queries) resolve(ctx context.Context, key string, naturalKey ...any) (int64, bool, error) {
	var id int64
	err := q.db.QueryRow(ctx, q.tables[key].resolve, naturalKey...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (q *Queries) ResolveCustomer(ctx context.Context, email string) (int64, bool, error) {
	return q.resolve(ctx, core.TableCustomers, email)
}

func (q *Queries) ResolveProduct(ctx context.Context, sku string) (int64, bool, error) {
	return q.resolve(ctx, core.TableProducts, sku)
}

func (q *Queries) ResolveOrder(ctx context.Context, orderUUID string) (int64, bool, error) {
	return q.resolve(ctx, core.TableOrders, orderUUID)
}

func (q *Queries) UpsertCustomer(ctx context.Context, p core.CustomerParams) error {
	return q.exec(ctx, core.TableCustomers, q.tables[core.TableCustomers].upsert, p)
}

func (q *Queries) CreateCustomerIfAbsent(ctx context.Context, p core.CustomerParams) error {
	return q.exec(ctx, core.TableCustomers, q.tables[core.TableCustomers].insertIfAbsent, p)
}

func (q *Queries) UpsertProduct(ctx context.Context, p core.ProductParams) error {
	return q.exec(ctx, core.TableProducts, q.tables[core.TableProducts].upsert, p)
}

func (q *Queries) CreateProductIfAbsent(ctx context.Context, p core.ProductParams) error {
	return q.exec(ctx, core.TableProducts, q.tables[core.TableProducts].insertIfAbsent, p)
}

func (q *Queries) UpsertOrder(ctx context.Context, p core.OrderParams) error {
	return q.exec(ctx, core.TableOrders, q.tables[core.TableOrders].upsert, p)
}

func (q *Queries) UpsertOrderItem(ctx context.Context, p core.OrderItemParams) error {
	return q.exec(ctx, core.TableOrderItems, q.tables[core.TableOrderItems].upsert, p)
}

func (q *Queries) RecordBatch(ctx context.Context, p core.BatchParams) error {
	return q.exec(ctx, core.TableBatches, q.tables[core.TableBatches].upsert, p)
}

var _ core.Tx = (*Queries)(nil)

// Store is a core.Store over a connection pool.
type Store struct {
	pool    *pgxpool.Pool
	queries *Queries
}

var _ core.Store = (*Store)(nil)

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	queries, err := New(pool)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, queries: queries}, nil
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateSchema creates the loader tables when they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	return CreateSchema(ctx, s.pool)
}
