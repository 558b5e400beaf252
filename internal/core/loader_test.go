package core_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/shopflow/internal/core"
	"github.com/JonMunkholm/shopflow/internal/store/memstore"
)

var day = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func orderRow(line int, orderUUID, email, items string) core.OrderRow {
	return core.OrderRow{
		Line:          line,
		OrderUUID:     orderUUID,
		CustomerUUID:  "C-" + email,
		CustomerName:  "Ann",
		CustomerEmail: email,
		CustomerPhone: "555-0100",
		OrderDate:     core.Date{Time: day, Valid: true},
		Status:        "pending",
		TotalAmount:   19.98,
		Items:         core.TextPayload(items),
	}
}

func load(t *testing.T, store core.Store, rows []core.OrderRow, opts ...core.Option) (*core.BatchResult, error) {
	t.Helper()
	batch := core.Batch{ID: uuid.New(), FileName: "orders.csv", Rows: rows}
	return core.NewLoader(store, opts...).Load(context.Background(), batch)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLoad_SingleOrder(t *testing.T) {
	store := memstore.New()
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","name":"Widget","quantity":2,"unit_price":9.99}]`),
	}

	result, err := load(t, store, rows)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Customers) != 1 || snap.Customers[0].Email != "a@x.com" {
		t.Fatalf("customers = %+v", snap.Customers)
	}
	if len(snap.Products) != 1 || snap.Products[0].SKU != "S1" || snap.Products[0].Name != "Widget" {
		t.Fatalf("products = %+v", snap.Products)
	}
	if len(snap.Orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(snap.Orders))
	}
	order := snap.Orders[0]
	if order.OrderUUID != "O1" || order.CustomerID != snap.Customers[0].ID {
		t.Errorf("order = %+v", order)
	}
	if len(snap.OrderItems) != 1 {
		t.Fatalf("got %d order items, want 1", len(snap.OrderItems))
	}
	item := snap.OrderItems[0]
	if item.OrderID != order.ID || item.ProductID != snap.Products[0].ID {
		t.Errorf("item references = %+v", item)
	}
	if item.Quantity != 2 || !almostEqual(item.UnitPrice, 9.99) || !almostEqual(item.LineTotal, 19.98) {
		t.Errorf("item = %+v, want quantity 2, unit_price 9.99, line_total 19.98", item)
	}

	if result.Orders != 1 || result.OrderItems != 1 || result.Customers != 1 || result.Products != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.CreatedCustomers != 0 || result.CreatedProducts != 0 {
		t.Errorf("unexpected on-demand creation: %+v", result)
	}
}

func TestLoad_RunTwiceIsIdempotent(t *testing.T) {
	store := memstore.New()
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","quantity":2,"unit_price":9.99},{"sku":"S2","quantity":1,"unit_price":5}]`),
		orderRow(3, "O2", "b@x.com", `[{"sku":"S1","quantity":1,"unit_price":9.99}]`),
	}

	if _, err := load(t, store, rows); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	first := store.Snapshot()

	if _, err := load(t, store, rows); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	second := store.Snapshot()

	if len(second.Customers) != 2 || len(second.Products) != 2 || len(second.Orders) != 2 || len(second.OrderItems) != 3 {
		t.Fatalf("counts after rerun: %d customers, %d products, %d orders, %d items",
			len(second.Customers), len(second.Products), len(second.Orders), len(second.OrderItems))
	}
	for i := range first.OrderItems {
		if first.OrderItems[i] != second.OrderItems[i] {
			t.Errorf("item %d changed: %+v -> %+v", i, first.OrderItems[i], second.OrderItems[i])
		}
	}
	if len(second.Batches) != 2 {
		t.Errorf("got %d batch rows, want one per run", len(second.Batches))
	}
}

func TestLoad_MalformedPayload(t *testing.T) {
	store := memstore.New()
	rows := []core.OrderRow{orderRow(2, "O1", "a@x.com", "not valid json")}

	result, err := load(t, store, rows)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Orders) != 1 {
		t.Errorf("got %d orders, want 1", len(snap.Orders))
	}
	if len(snap.OrderItems) != 0 {
		t.Errorf("got %d order items, want 0", len(snap.OrderItems))
	}
	if result.MalformedPayloads != 1 {
		t.Errorf("MalformedPayloads = %d, want 1", result.MalformedPayloads)
	}
}

func TestLoad_AggregatesAcrossOrders(t *testing.T) {
	store := memstore.New()
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","name":"Widget","quantity":1,"unit_price":2}]`),
		orderRow(3, "O2", "a@x.com", `[{"sku":"S1","name":"Widget v2","quantity":4,"unit_price":3}]`),
	}

	if _, err := load(t, store, rows); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Customers) != 1 {
		t.Errorf("got %d customers, want 1 per email", len(snap.Customers))
	}
	if len(snap.Products) != 1 {
		t.Fatalf("got %d products, want 1 per sku", len(snap.Products))
	}
	if snap.Products[0].Name != "Widget" {
		t.Errorf("product name = %q, first occurrence should win", snap.Products[0].Name)
	}
	if len(snap.OrderItems) != 2 {
		t.Fatalf("got %d order items, want 2", len(snap.OrderItems))
	}
	if got := snap.OrderItems[1]; got.Quantity != 4 || !almostEqual(got.LineTotal, 12) {
		t.Errorf("second item = %+v, want quantity 4, line_total 12", got)
	}
}

// failingStore fails UpsertOrder for one order uuid.
type failingStore struct {
	inner  core.Store
	failOn string
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return fn(ctx, failingTx{Tx: tx, failOn: s.failOn})
	})
}

type failingTx struct {
	core.Tx
	failOn string
}

func (t failingTx) UpsertOrder(ctx context.Context, p core.OrderParams) error {
	if p.OrderUUID == t.failOn {
		return errors.New("connection reset by peer")
	}
	return t.Tx.UpsertOrder(ctx, p)
}

func TestLoad_FailureRollsBackBatch(t *testing.T) {
	mem := memstore.New()
	store := failingStore{inner: mem, failOn: "O3"}
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","quantity":1}]`),
		orderRow(3, "O2", "b@x.com", `[{"sku":"S2","quantity":1}]`),
		orderRow(4, "O3", "c@x.com", `[{"sku":"S3","quantity":1}]`),
	}

	_, err := load(t, store, rows)
	if err == nil {
		t.Fatal("Load() expected error")
	}
	if !strings.Contains(err.Error(), "upsert order O3") {
		t.Errorf("error should name the order, got: %v", err)
	}
	if !core.IsTransient(err) {
		t.Errorf("IsTransient(%v) = false, want true", err)
	}

	snap := mem.Snapshot()
	if n := len(snap.Customers) + len(snap.Products) + len(snap.Orders) + len(snap.OrderItems); n != 0 {
		t.Errorf("got %d rows after rollback, want 0", n)
	}
	if len(snap.Batches) != 0 {
		t.Errorf("got %d batch rows after rollback, want 0", len(snap.Batches))
	}
}

// viewlessStore skips the customer and product upserts so every order has
// to create its references on demand.
type viewlessStore struct {
	inner core.Store
}

func (s viewlessStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return fn(ctx, viewlessTx{Tx: tx})
	})
}

type viewlessTx struct {
	core.Tx
}

func (viewlessTx) UpsertCustomer(context.Context, core.CustomerParams) error { return nil }
func (viewlessTx) UpsertProduct(context.Context, core.ProductParams) error   { return nil }

func TestLoad_CreatesMissingReferences(t *testing.T) {
	mem := memstore.New()
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","name":"Widget","quantity":2,"unit_price":9.99}]`),
		orderRow(3, "O2", "a@x.com", `[{"sku":"S1","quantity":1,"unit_price":9.99}]`),
	}

	result, err := load(t, viewlessStore{inner: mem}, rows)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.CreatedCustomers != 1 || result.CreatedProducts != 1 {
		t.Errorf("created = %d customers, %d products, want 1 and 1",
			result.CreatedCustomers, result.CreatedProducts)
	}

	snap := mem.Snapshot()
	if len(snap.Customers) != 1 {
		t.Fatalf("got %d customers, want 1", len(snap.Customers))
	}
	c := snap.Customers[0]
	if c.Name != "Ann" || c.Phone != "555-0100" || c.CustomerUUID != "C-a@x.com" || !c.CreatedAt.Equal(day) {
		t.Errorf("customer = %+v, want fields from the order row", c)
	}
	if len(snap.Products) != 1 || snap.Products[0].Name != "Widget" {
		t.Errorf("products = %+v", snap.Products)
	}
	if len(snap.OrderItems) != 2 {
		t.Errorf("got %d order items, want 2", len(snap.OrderItems))
	}
}

func TestLoad_StrictCoercionFailsBeforeWrites(t *testing.T) {
	store := memstore.New()
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","quantity":1}]`),
		orderRow(3, "O2", "b@x.com", `[{"sku":"S2","quantity":"two"}]`),
	}

	_, err := load(t, store, rows)
	if err == nil {
		t.Fatal("Load() expected error")
	}
	var verr core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v is not a ValidationError", err)
	}
	if verr.Line != 3 || verr.OrderUUID != "O2" {
		t.Errorf("ValidationError = %+v, want line 3 order O2", verr)
	}

	snap := store.Snapshot()
	if len(snap.Orders) != 0 || len(snap.Batches) != 0 {
		t.Errorf("rows written despite strict failure: %+v", snap)
	}
}

func TestLoad_LenientDropsBadItems(t *testing.T) {
	store := memstore.New()
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","quantity":"two"},{"sku":"S2","quantity":1}]`),
	}

	result, err := load(t, store, rows, core.WithItemPolicy(core.ItemPolicyLenient))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.DroppedItems != 1 || result.OrderItems != 1 {
		t.Errorf("result = %+v, want 1 dropped and 1 written", result)
	}
	if got := store.Snapshot().Batches[0].DroppedItems; got != 1 {
		t.Errorf("batch DroppedItems = %d, want 1", got)
	}
}

func TestLoad_ConvergesOnChangedRow(t *testing.T) {
	store := memstore.New()

	first := orderRow(2, "O1", "a@x.com", `[{"sku":"S1","quantity":1,"unit_price":10}]`)
	if _, err := load(t, store, []core.OrderRow{first}); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	second := first
	second.CustomerName = "Ann B"
	second.CustomerPhone = "555-0199"
	second.Status = "shipped"
	second.TotalAmount = 30
	second.OrderDate = core.Date{Time: day.AddDate(0, 1, 0), Valid: true}
	second.Items = core.TextPayload(`[{"sku":"S1","quantity":3,"unit_price":10}]`)
	if _, err := load(t, store, []core.OrderRow{second}); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	snap := store.Snapshot()
	c := snap.Customers[0]
	if c.Name != "Ann B" || c.Phone != "555-0199" {
		t.Errorf("customer = %+v, want refreshed name and phone", c)
	}
	if !c.CreatedAt.Equal(day) {
		t.Errorf("customer CreatedAt = %v, want %v", c.CreatedAt, day)
	}

	o := snap.Orders[0]
	if o.Status != "shipped" || !almostEqual(o.TotalAmount, 30) {
		t.Errorf("order = %+v, want refreshed status and total", o)
	}
	if !o.OrderDate.Time.Equal(day) {
		t.Errorf("order date = %v, want original %v", o.OrderDate.Time, day)
	}

	if len(snap.OrderItems) != 1 {
		t.Fatalf("got %d order items, want 1", len(snap.OrderItems))
	}
	if it := snap.OrderItems[0]; it.Quantity != 3 || !almostEqual(it.LineTotal, 30) {
		t.Errorf("item = %+v, want quantity 3, line_total 30", it)
	}
}

func TestLoad_RecordsBatch(t *testing.T) {
	store := memstore.New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []core.OrderRow{
		orderRow(2, "O1", "a@x.com", `[{"sku":"S1","quantity":2,"unit_price":9.99},{"quantity":1}]`),
	}
	rows[0].OrderDate = core.Date{}

	batch := core.Batch{ID: uuid.New(), FileName: "orders.jsonl", Rows: rows}
	loader := core.NewLoader(store, core.WithClock(func() time.Time { return now }))
	result, err := loader.Load(context.Background(), batch)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.BatchID != batch.ID || result.Duration != 0 {
		t.Errorf("result = %+v", result)
	}

	snap := store.Snapshot()
	if len(snap.Batches) != 1 {
		t.Fatalf("got %d batch rows, want 1", len(snap.Batches))
	}
	b := snap.Batches[0]
	want := core.BatchParams{
		BatchID:      batch.ID,
		FileName:     "orders.jsonl",
		Rows:         1,
		Items:        1,
		DroppedItems: 1,
		Customers:    1,
		Products:     1,
		Orders:       1,
		OrderItems:   1,
		StartedAt:    now,
		FinishedAt:   now,
	}
	if b != want {
		t.Errorf("batch row = %+v, want %+v", b, want)
	}

	if !snap.Orders[0].CreatedAt.Equal(now) {
		t.Errorf("order CreatedAt = %v, want batch start for a missing date", snap.Orders[0].CreatedAt)
	}
	if snap.Orders[0].OrderDate.Valid {
		t.Error("order date should stay empty")
	}
}

func TestLoad_EmptyBatch(t *testing.T) {
	store := memstore.New()

	result, err := load(t, store, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.Rows != 0 || result.Orders != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(store.Snapshot().Batches) != 1 {
		t.Error("empty batch should still be recorded")
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	store := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := core.Batch{ID: uuid.New(), Rows: []core.OrderRow{orderRow(2, "O1", "a@x.com", "")}}
	_, err := core.NewLoader(store).Load(ctx, batch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(store.Snapshot().Orders) != 0 {
		t.Error("rows written after cancellation")
	}
}
