// Package tables registers the loader's table definitions with the core
// registry. Import it for its side effect before opening a store.
package tables

import (
	"strings"

	"github.com/JonMunkholm/shopflow/internal/core"
)

func init() {
	registerCustomers()
	registerProducts()
	registerOrders()
	registerOrderItems()
	registerBatches()
}

func registerCustomers() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.TableCustomers,
			IDColumn:  "customer_id",
			UniqueKey: []string{"email"},
		},
		Columns:       []string{"customer_uuid", "name", "email", "phone", "created_at"},
		UpdateColumns: []string{"name", "phone"},
		LoadOrder:     1,
		RowValues: func(params any) []any {
			p := params.(core.CustomerParams)
			return []any{optional(p.CustomerUUID), p.Name, p.Email, optional(p.Phone), p.CreatedAt}
		},
	})
}

func registerProducts() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.TableProducts,
			IDColumn:  "product_id",
			UniqueKey: []string{"sku"},
		},
		Columns:       []string{"sku", "name", "price", "stock", "created_at"},
		UpdateColumns: []string{"name", "price"},
		LoadOrder:     1,
		RowValues: func(params any) []any {
			p := params.(core.ProductParams)
			return []any{p.SKU, p.Name, p.Price, p.Stock, p.CreatedAt}
		},
	})
}

func registerOrders() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.TableOrders,
			IDColumn:  "order_id",
			UniqueKey: []string{"order_uuid"},
		},
		Columns:       []string{"order_uuid", "customer_id", "order_date", "total_amount", "status", "created_at"},
		UpdateColumns: []string{"total_amount", "status"},
		LoadOrder:     2,
		RowValues: func(params any) []any {
			p := params.(core.OrderParams)
			return []any{p.OrderUUID, p.CustomerID, p.OrderDate, p.TotalAmount, p.Status, p.CreatedAt}
		},
	})
}

func registerOrderItems() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.TableOrderItems,
			IDColumn:  "order_item_id",
			UniqueKey: []string{"order_id", "product_id"},
		},
		Columns:       []string{"order_id", "product_id", "quantity", "unit_price", "line_total"},
		UpdateColumns: []string{"quantity", "unit_price", "line_total"},
		LoadOrder:     3,
		RowValues: func(params any) []any {
			p := params.(core.OrderItemParams)
			return []any{p.OrderID, p.ProductID, p.Quantity, p.UnitPrice, p.LineTotal}
		},
	})
}

// etl_batches is insert only: a batch id is never reused.
func registerBatches() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:       core.TableBatches,
			IDColumn:  "batch_id",
			UniqueKey: []string{"batch_id"},
		},
		Columns: []string{
			"batch_id", "file_name", "rows_read", "items_read", "items_dropped",
			"customers", "products", "orders", "order_items", "started_at", "finished_at",
		},
		LoadOrder: 4,
		RowValues: func(params any) []any {
			p := params.(core.BatchParams)
			return []any{
				p.BatchID, p.FileName, p.Rows, p.Items, p.DroppedItems,
				p.Customers, p.Products, p.Orders, p.OrderItems, p.StartedAt, p.FinishedAt,
			}
		},
	})
}

// optional maps blank strings to NULL.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
