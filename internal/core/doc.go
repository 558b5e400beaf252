// Package core provides the business logic for loading order exports.
//
// The package has no knowledge of files or databases. Rows arrive already
// decoded (see the reader package) and are written through a [Store], so the
// same pipeline runs against Postgres, gorm dialects, or the in-memory store.
//
// # Pipeline
//
// A batch moves through four stages:
//
//  1. Rows are built from raw cells with [NewOrderRow], which validates the
//     required fields and coerces the order total.
//  2. [ItemNormalizer] flattens each row's items payload into [Item] values.
//     Malformed payloads are logged and contribute zero items.
//  3. [Extract] derives the deduplicated customer and product views plus the
//     ordered list of orders.
//  4. [Loader.Load] writes everything inside one transaction: customers,
//     products, then each order with its line items.
//
// # Table Registry
//
// Tables are registered at init time using [Register]. Each [TableDefinition]
// names the natural key and the columns refreshed on conflict, which the store
// backends turn into native upserts:
//
//	core.Register(core.TableDefinition{
//	    Info:          core.TableInfo{Key: "products", IDColumn: "product_id", UniqueKey: []string{"sku"}},
//	    Columns:       []string{"sku", "name", "price", "stock", "created_at"},
//	    UpdateColumns: []string{"name", "price"},
//	    RowValues:     productValues,
//	})
//
// # Error Handling
//
// Technical errors are mapped to operator-facing messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB008: Database errors (duplicates, constraints, connections)
//   - VAL002-VAL005: Validation errors (numbers, required fields, columns, widths)
//   - FILE001-FILE006: File errors (size, encoding, format)
//   - LOAD001-LOAD002: Batch errors (cancelled, timeout)
package core
