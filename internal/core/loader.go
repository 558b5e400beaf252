package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/shopflow/internal/logging"
)

// Loader writes batches of order rows to a Store.
type Loader struct {
	store  Store
	policy ItemPolicy
	now    func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithItemPolicy sets how item coercion failures are handled.
func WithItemPolicy(p ItemPolicy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// NewLoader creates a Loader over store. The default item policy is strict.
func NewLoader(store Store, opts ...Option) *Loader {
	l := &Loader{
		store:  store,
		policy: ItemPolicyStrict,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load normalizes, extracts and writes one batch in a single transaction.
// Any error rolls the whole batch back.
func (l *Loader) Load(ctx context.Context, batch Batch) (*BatchResult, error) {
	started := l.now()
	logger := logging.FromContext(ctx)

	logger.Info("extracting entities", "file", batch.FileName, "rows", len(batch.Rows))

	normalizer := &ItemNormalizer{Policy: l.policy}
	var items []Item
	for item, err := range normalizer.Items(ctx, batch.Rows) {
		if err != nil {
			return nil, fmt.Errorf("normalize items: %w", err)
		}
		items = append(items, item)
	}
	views := Extract(batch.Rows, items)

	logger.Info("entities extracted",
		"customers", len(views.Customers),
		"products", len(views.Products),
		"orders", len(views.Orders),
		"items", len(items),
		"dropped_items", normalizer.Dropped,
		"malformed_payloads", normalizer.Malformed,
	)

	result := &BatchResult{
		BatchID:           batch.ID,
		FileName:          batch.FileName,
		Rows:              len(batch.Rows),
		Items:             len(items),
		DroppedItems:      normalizer.Dropped,
		MalformedPayloads: normalizer.Malformed,
	}

	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		w := &batchWriter{tx: tx, started: started, result: result}
		if err := w.write(ctx, views); err != nil {
			return err
		}
		return tx.RecordBatch(ctx, BatchParams{
			BatchID:      batch.ID,
			FileName:     batch.FileName,
			Rows:         result.Rows,
			Items:        result.Items,
			DroppedItems: result.DroppedItems,
			Customers:    result.Customers,
			Products:     result.Products,
			Orders:       result.Orders,
			OrderItems:   result.OrderItems,
			StartedAt:    started,
			FinishedAt:   l.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	result.Duration = l.now().Sub(started)
	return result, nil
}

// batchWriter carries the state of one transaction.
type batchWriter struct {
	tx      Tx
	started time.Time
	result  *BatchResult
}

func (w *batchWriter) write(ctx context.Context, views Views) error {
	logger := logging.FromContext(ctx)

	logger.Info("upserting customers", "count", len(views.Customers))
	for _, c := range views.Customers {
		err := w.tx.UpsertCustomer(ctx, CustomerParams{
			CustomerUUID: c.CustomerUUID,
			Name:         c.Name,
			Email:        c.Email,
			Phone:        c.Phone,
			CreatedAt:    c.OrderDate.Or(w.started),
		})
		if err != nil {
			return fmt.Errorf("upsert customer %s: %w", c.Email, err)
		}
		w.result.Customers++
	}

	logger.Info("upserting products", "count", len(views.Products))
	for _, p := range views.Products {
		err := w.tx.UpsertProduct(ctx, ProductParams{
			SKU:       p.SKU,
			Name:      p.Name,
			Price:     p.UnitPrice,
			CreatedAt: w.started,
		})
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.SKU, err)
		}
		w.result.Products++
	}

	for _, o := range views.Orders {
		if err := ctx.Err(); err != nil {
			return err
		}
		items := views.ItemsByOrder[o.OrderUUID]
		orderLogger := logging.WithFields(ctx, "order_uuid", o.OrderUUID)
		orderLogger.Info("inserting order", "items", len(items))
		if err := w.writeOrder(ctx, orderLogger, o, items); err != nil {
			return err
		}
	}
	return nil
}

func (w *batchWriter) writeOrder(ctx context.Context, logger *slog.Logger, o OrderRecord, items []Item) error {
	customerID, err := w.ensureCustomer(ctx, logger, o)
	if err != nil {
		return fmt.Errorf("order %s: %w", o.OrderUUID, err)
	}

	err = w.tx.UpsertOrder(ctx, OrderParams{
		OrderUUID:   o.OrderUUID,
		CustomerID:  customerID,
		OrderDate:   o.OrderDate,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		CreatedAt:   o.OrderDate.Or(w.started),
	})
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.OrderUUID, err)
	}

	orderID, found, err := w.tx.ResolveOrder(ctx, o.OrderUUID)
	if err != nil {
		return fmt.Errorf("resolve order %s: %w", o.OrderUUID, err)
	}
	if !found {
		return fmt.Errorf("order %s not found after upsert", o.OrderUUID)
	}

	for _, item := range items {
		productID, err := w.ensureProduct(ctx, logger, item)
		if err != nil {
			return fmt.Errorf("order %s item %s: %w", o.OrderUUID, item.SKU, err)
		}
		err = w.tx.UpsertOrderItem(ctx, OrderItemParams{
			OrderID:   orderID,
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: LineTotal(item.Quantity, item.UnitPrice),
		})
		if err != nil {
			return fmt.Errorf("order %s item %s: %w", o.OrderUUID, item.SKU, err)
		}
		w.result.OrderItems++
	}

	w.result.Orders++
	return nil
}

// ensureCustomer resolves the order's customer, creating a minimal one from
// the order row when it does not exist yet.
func (w *batchWriter) ensureCustomer(ctx context.Context, logger *slog.Logger, o OrderRecord) (int64, error) {
	id, found, err := w.tx.ResolveCustomer(ctx, o.CustomerEmail)
	if err != nil {
		return 0, fmt.Errorf("resolve customer %s: %w", o.CustomerEmail, err)
	}
	if found {
		return id, nil
	}

	err = w.tx.CreateCustomerIfAbsent(ctx, CustomerParams{
		CustomerUUID: o.CustomerUUID,
		Name:         o.CustomerName,
		Email:        o.CustomerEmail,
		Phone:        o.CustomerPhone,
		CreatedAt:    o.OrderDate.Or(w.started),
	})
	if err != nil {
		return 0, fmt.Errorf("create customer %s: %w", o.CustomerEmail, err)
	}
	w.result.CreatedCustomers++
	logger.Debug("created missing customer", "email", o.CustomerEmail)

	id, found, err = w.tx.ResolveCustomer(ctx, o.CustomerEmail)
	if err != nil {
		return 0, fmt.Errorf("resolve customer %s: %w", o.CustomerEmail, err)
	}
	if !found {
		return 0, fmt.Errorf("customer %s not found after create", o.CustomerEmail)
	}
	return id, nil
}

// ensureProduct resolves the item's product, creating a minimal one from the
// item when it does not exist yet.
func (w *batchWriter) ensureProduct(ctx context.Context, logger *slog.Logger, item Item) (int64, error) {
	id, found, err := w.tx.ResolveProduct(ctx, item.SKU)
	if err != nil {
		return 0, fmt.Errorf("resolve product: %w", err)
	}
	if found {
		return id, nil
	}

	err = w.tx.CreateProductIfAbsent(ctx, ProductParams{
		SKU:       item.SKU,
		Name:      item.Name,
		Price:     item.UnitPrice,
		CreatedAt: w.started,
	})
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	w.result.CreatedProducts++
	logger.Debug("created missing product", "sku", item.SKU)

	id, found, err = w.tx.ResolveProduct(ctx, item.SKU)
	if err != nil {
		return 0, fmt.Errorf("resolve product: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("product %s not found after create", item.SKU)
	}
	return id, nil
}
