// Package memstore provides an in-memory transactional core.Store.
//
// Each transaction works on a copy of the committed state; the copy replaces
// the committed state only when the transaction function succeeds. Natural
// keys behave like the unique constraints of the SQL backends. It backs dry
// runs and tests.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/shopflow/internal/core"
)

// Customer is a stored customers row.
type Customer struct {
	ID           int64
	CustomerUUID string
	Name         string
	Email        string
	Phone        string
	CreatedAt    time.Time
}

// Product is a stored products row.
type Product struct {
	ID        int64
	SKU       string
	Name      string
	Price     float64
	Stock     int
	CreatedAt time.Time
}

// Order is a stored orders row.
type Order struct {
	ID          int64
	OrderUUID   string
	CustomerID  int64
	OrderDate   core.Date
	TotalAmount float64
	Status      string
	CreatedAt   time.Time
}

// OrderItem is a stored order_items row.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice float64
	LineTotal float64
}

type itemKey struct {
	orderID, productID int64
}

type sequences struct {
	customer, product, order, item int64
}

type state struct {
	customers map[string]Customer // by email
	products  map[string]Product  // by sku
	orders    map[string]Order    // by order uuid
	items     map[itemKey]OrderItem
	batches   []core.BatchParams
	seq       sequences
}

func newState() state {
	return state{
		customers: map[string]Customer{},
		products:  map[string]Product{},
		orders:    map[string]Order{},
		items:     map[itemKey]OrderItem{},
	}
}

func (s state) clone() state {
	return state{
		customers: maps.Clone(s.customers),
		products:  maps.Clone(s.products),
		orders:    maps.Clone(s.orders),
		items:     maps.Clone(s.items),
		batches:   slices.Clone(s.batches),
		seq:       s.seq,
	}
}

// Store is an in-memory core.Store. Transactions are serialized.
type Store struct {
	mu    sync.Mutex
	state state
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// WithinTx runs fn against a copy of the state and commits the copy when fn
// returns nil and ctx is still live.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = tx.state
	return nil
}

// Snapshot is a copy of the committed rows, each table ordered by id.
type Snapshot struct {
	Customers  []Customer
	Products   []Product
	Orders     []Order
	OrderItems []OrderItem
	Batches    []core.BatchParams
}

// Snapshot returns the committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Customers:  slices.SortedFunc(maps.Values(s.state.customers), func(a, b Customer) int { return cmp.Compare(a.ID, b.ID) }),
		Products:   slices.SortedFunc(maps.Values(s.state.products), func(a, b Product) int { return cmp.Compare(a.ID, b.ID) }),
		Orders:     slices.SortedFunc(maps.Values(s.state.orders), func(a, b Order) int { return cmp.Compare(a.ID, b.ID) }),
		OrderItems: slices.SortedFunc(maps.Values(s.state.items), func(a, b OrderItem) int { return cmp.Compare(a.ID, b.ID) }),
		Batches:    slices.Clone(s.state.batches),
	}
	return snap
}

// memTx implements core.Tx over a private copy of the state.
type memTx struct {
	state state
}

func (t *memTx) ResolveCustomer(_ context.Context, email string) (int64, bool, error) {
	c, ok := t.state.customers[email]
	return c.ID, ok, nil
}

func (t *memTx) ResolveProduct(_ context.Context, sku string) (int64, bool, error) {
	p, ok := t.state.products[sku]
	return p.ID, ok, nil
}

func (t *memTx) ResolveOrder(_ context.Context, orderUUID string) (int64, bool, error) {
	o, ok := t.state.orders[orderUUID]
	return o.ID, ok, nil
}

func (t *memTx) UpsertCustomer(_ context.Context, p core.CustomerParams) error {
	if c, ok := t.state.customers[p.Email]; ok {
		c.Name = p.Name
		c.Phone = p.Phone
		t.state.customers[p.Email] = c
		return nil
	}
	t.insertCustomer(p)
	return nil
}

func (t *memTx) CreateCustomerIfAbsent(_ context.Context, p core.CustomerParams) error {
	if _, ok := t.state.customers[p.Email]; !ok {
		t.insertCustomer(p)
	}
	return nil
}

func (t *memTx) insertCustomer(p core.CustomerParams) {
	t.state.seq.customer++
	t.state.customers[p.Email] = Customer{
		ID:           t.state.seq.customer,
		CustomerUUID: p.CustomerUUID,
		Name:         p.Name,
		Email:        p.Email,
		Phone:        p.Phone,
		CreatedAt:    p.CreatedAt,
	}
}

func (t *memTx) UpsertProduct(_ context.Context, p core.ProductParams) error {
	if existing, ok := t.state.products[p.SKU]; ok {
		existing.Name = p.Name
		existing.Price = p.Price
		t.state.products[p.SKU] = existing
		return nil
	}
	t.insertProduct(p)
	return nil
}

func (t *memTx) CreateProductIfAbsent(_ context.Context, p core.ProductParams) error {
	if _, ok := t.state.products[p.SKU]; !ok {
		t.insertProduct(p)
	}
	return nil
}

func (t *memTx) insertProduct(p core.ProductParams) {
	t.state.seq.product++
	t.state.products[p.SKU] = Product{
		ID:        t.state.seq.product,
		SKU:       p.SKU,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
	}
}

func (t *memTx) UpsertOrder(_ context.Context, p core.OrderParams) error {
	if !exists(p.CustomerID, t.state.seq.customer) {
		return foreignKeyError(core.TableOrders, "customer_id", p.CustomerID)
	}
	if o, ok := t.state.orders[p.OrderUUID]; ok {
		o.TotalAmount = p.TotalAmount
		o.Status = p.Status
		t.state.orders[p.OrderUUID] = o
		return nil
	}
	t.state.seq.order++
	t.state.orders[p.OrderUUID] = Order{
		ID:          t.state.seq.order,
		OrderUUID:   p.OrderUUID,
		CustomerID:  p.CustomerID,
		OrderDate:   p.OrderDate,
		TotalAmount: p.TotalAmount,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
	}
	return nil
}

func (t *memTx) UpsertOrderItem(_ context.Context, p core.OrderItemParams) error {
	if !exists(p.OrderID, t.state.seq.order) {
		return foreignKeyError(core.TableOrderItems, "order_id", p.OrderID)
	}
	if !exists(p.ProductID, t.state.seq.product) {
		return foreignKeyError(core.TableOrderItems, "product_id", p.ProductID)
	}

	key := itemKey{orderID: p.OrderID, productID: p.ProductID}
	if it, ok := t.state.items[key]; ok {
		it.Quantity = p.Quantity
		it.UnitPrice = p.UnitPrice
		it.LineTotal = p.LineTotal
		t.state.items[key] = it
		return nil
	}
	t.state.seq.item++
	t.state.items[key] = OrderItem{
		ID:        t.state.seq.item,
		OrderID:   p.OrderID,
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
		UnitPrice: p.UnitPrice,
		LineTotal: p.LineTotal,
	}
	return nil
}

func (t *memTx) RecordBatch(_ context.Context, p core.BatchParams) error {
	for _, b := range t.state.batches {
		if b.BatchID == p.BatchID {
			return fmt.Errorf("duplicate key value violates unique constraint on %s: batch_id %s", core.TableBatches, p.BatchID)
		}
	}
	t.state.batches = append(t.state.batches, p)
	return nil
}

// exists reports whether id was handed out. Rows are never deleted, so every
// id up to the sequence value is live.
func exists(id, seq int64) bool {
	return id >= 1 && id <= seq
}

func foreignKeyError(table, column string, id int64) error {
	return fmt.Errorf("insert or update on table %q violates foreign key constraint: %s %d does not exist", table, column, id)
}
