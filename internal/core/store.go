package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Resolver looks up surrogate ids by natural key. found is false when no row
// matches; err is reserved for store failures.
type Resolver interface {
	ResolveCustomer(ctx context.Context, email string) (id int64, found bool, err error)
	ResolveProduct(ctx context.Context, sku string) (id int64, found bool, err error)
	ResolveOrder(ctx context.Context, orderUUID string) (id int64, found bool, err error)
}

// Tx is the write surface available inside a batch transaction.
type Tx interface {
	Resolver

	// UpsertCustomer inserts by email or refreshes name and phone.
	UpsertCustomer(ctx context.Context, p CustomerParams) error
	// CreateCustomerIfAbsent inserts by email and leaves an existing row alone.
	CreateCustomerIfAbsent(ctx context.Context, p CustomerParams) error
	// UpsertProduct inserts by SKU or refreshes name and price.
	UpsertProduct(ctx context.Context, p ProductParams) error
	// CreateProductIfAbsent inserts by SKU and leaves an existing row alone.
	CreateProductIfAbsent(ctx context.Context, p ProductParams) error
	// UpsertOrder inserts by order UUID or refreshes total and status.
	UpsertOrder(ctx context.Context, p OrderParams) error
	// UpsertOrderItem inserts by (order, product) or refreshes quantity and prices.
	UpsertOrderItem(ctx context.Context, p OrderItemParams) error
	// RecordBatch writes the audit row of a batch.
	RecordBatch(ctx context.Context, p BatchParams) error
}

// Store runs a function inside one transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CustomerParams holds the columns of a customers row.
type CustomerParams struct {
	CustomerUUID string
	Name         string
	Email        string
	Phone        string
	CreatedAt    time.Time
}

// ProductParams holds the columns of a products row. Stock is only used on insert.
type ProductParams struct {
	SKU       string
	Name      string
	Price     float64
	Stock     int
	CreatedAt time.Time
}

// OrderParams holds the columns of an orders row.
type OrderParams struct {
	OrderUUID   string
	CustomerID  int64
	OrderDate   Date
	TotalAmount float64
	Status      string
	CreatedAt   time.Time
}

// OrderItemParams holds the columns of an order_items row.
type OrderItemParams struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice float64
	LineTotal float64
}

// BatchParams holds the columns of an etl_batches row.
type BatchParams struct {
	BatchID      uuid.UUID
	FileName     string
	Rows         int
	Items        int
	DroppedItems int
	Customers    int
	Products     int
	Orders       int
	OrderItems   int
	StartedAt    time.Time
	FinishedAt   time.Time
}
