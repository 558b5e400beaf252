package memstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/shopflow/internal/core"
)

func TestWithinTx_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	created := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	err := s.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.UpsertCustomer(ctx, core.CustomerParams{Email: "a@x.com", Name: "Ann", CreatedAt: created})
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		if err := tx.UpsertCustomer(ctx, core.CustomerParams{Email: "a@x.com", Name: "Changed"}); err != nil {
			return err
		}
		if err := tx.UpsertCustomer(ctx, core.CustomerParams{Email: "b@x.com", Name: "Bob"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	snap := s.Snapshot()
	if len(snap.Customers) != 1 {
		t.Fatalf("got %d customers, want 1", len(snap.Customers))
	}
	if snap.Customers[0].Name != "Ann" {
		t.Errorf("Name = %q, rolled back change leaked", snap.Customers[0].Name)
	}
}

func TestUpsertCustomer_KeepsCreatedAtAndUUID(t *testing.T) {
	ctx := context.Background()
	s := New()
	first := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	for _, p := range []core.CustomerParams{
		{CustomerUUID: "C1", Email: "a@x.com", Name: "Ann", Phone: "1", CreatedAt: first},
		{CustomerUUID: "C9", Email: "a@x.com", Name: "Ann B", Phone: "2", CreatedAt: first.AddDate(1, 0, 0)},
	} {
		err := s.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
			return tx.UpsertCustomer(ctx, p)
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	c := s.Snapshot().Customers[0]
	if c.Name != "Ann B" || c.Phone != "2" {
		t.Errorf("name/phone not refreshed: %+v", c)
	}
	if c.CustomerUUID != "C1" || !c.CreatedAt.Equal(first) {
		t.Errorf("insert-only columns changed: %+v", c)
	}
}

func TestCreateIfAbsent_LeavesExisting(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		if err := tx.UpsertProduct(ctx, core.ProductParams{SKU: "S1", Name: "Widget", Price: 9.99}); err != nil {
			return err
		}
		if err := tx.CreateProductIfAbsent(ctx, core.ProductParams{SKU: "S1", Name: "Other", Price: 1}); err != nil {
			return err
		}
		return tx.CreateCustomerIfAbsent(ctx, core.CustomerParams{Email: "a@x.com", Name: "Ann"})
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if len(snap.Products) != 1 || snap.Products[0].Name != "Widget" || snap.Products[0].Price != 9.99 {
		t.Errorf("existing product modified: %+v", snap.Products)
	}
	if len(snap.Customers) != 1 {
		t.Errorf("got %d customers, want 1", len(snap.Customers))
	}
}

func TestForeignKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.UpsertOrder(ctx, core.OrderParams{OrderUUID: "O1", CustomerID: 42})
	})
	if err == nil || !strings.Contains(err.Error(), "foreign key") {
		t.Fatalf("order with unknown customer: err = %v", err)
	}

	err = s.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		if err := tx.UpsertCustomer(ctx, core.CustomerParams{Email: "a@x.com"}); err != nil {
			return err
		}
		if err := tx.UpsertOrder(ctx, core.OrderParams{OrderUUID: "O1", CustomerID: 1}); err != nil {
			return err
		}
		return tx.UpsertOrderItem(ctx, core.OrderItemParams{OrderID: 1, ProductID: 7, Quantity: 1})
	})
	if err == nil || !strings.Contains(err.Error(), "product_id 7") {
		t.Fatalf("item with unknown product: err = %v", err)
	}
	if snap := s.Snapshot(); len(snap.Customers) != 0 || len(snap.Orders) != 0 {
		t.Errorf("failed transaction left rows: %+v", snap)
	}
}

func TestWithinTx_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		if err := tx.UpsertCustomer(ctx, core.CustomerParams{Email: "a@x.com"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(s.Snapshot().Customers) != 0 {
		t.Error("cancelled transaction was committed")
	}
}
