package core

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Table keys used by the loader.
const (
	TableCustomers  = "customers"
	TableProducts   = "products"
	TableOrders     = "orders"
	TableOrderItems = "order_items"
	TableBatches    = "etl_batches"
)

// TableInfo describes where a table keeps its identity.
type TableInfo struct {
	Key       string   // table name: "customers"
	IDColumn  string   // surrogate key: "customer_id"
	UniqueKey []string // natural key column(s)
}

// RowValuesFunc converts one of the *Params types to column values.
// The returned slice must line up with TableDefinition.Columns.
type RowValuesFunc func(params any) []any

// TableDefinition contains everything a store needs to write a table.
type TableDefinition struct {
	Info          TableInfo
	Columns       []string // insert columns, in RowValues order
	UpdateColumns []string // refreshed on natural-key conflict; empty means insert only
	LoadOrder     int      // parents before children
	RowValues     RowValuesFunc
}

var (
	registry   = make(map[string]TableDefinition)
	registryMu sync.RWMutex
)

// Register adds a table definition to the registry.
// Panics if the key is already registered or the definition is inconsistent.
func Register(def TableDefinition) {
	if err := def.validate(); err != nil {
		panic(fmt.Sprintf("invalid table definition %s: %v", def.Info.Key, err))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("table already registered: %s", def.Info.Key))
	}
	registry[def.Info.Key] = def
}

func (d TableDefinition) validate() error {
	if d.Info.Key == "" {
		return fmt.Errorf("missing key")
	}
	if d.Info.IDColumn == "" {
		return fmt.Errorf("missing id column")
	}
	if len(d.Info.UniqueKey) == 0 {
		return fmt.Errorf("missing unique key")
	}
	if d.RowValues == nil {
		return fmt.Errorf("missing RowValues")
	}
	for _, col := range d.Info.UniqueKey {
		if !slices.Contains(d.Columns, col) {
			return fmt.Errorf("unique key column %q not in columns", col)
		}
	}
	for _, col := range d.UpdateColumns {
		if !slices.Contains(d.Columns, col) {
			return fmt.Errorf("update column %q not in columns", col)
		}
		if slices.Contains(d.Info.UniqueKey, col) {
			return fmt.Errorf("update column %q is part of the unique key", col)
		}
	}
	return nil
}

// Get returns a table definition by key.
// Returns false if not found.
func Get(key string) (TableDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered table definitions in load order, then by key.
func All() []TableDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LoadOrder != result[j].LoadOrder {
			return result[i].LoadOrder < result[j].LoadOrder
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// loaderTables are the tables every store must be able to write.
var loaderTables = []string{
	TableCustomers, TableProducts, TableOrders, TableOrderItems, TableBatches,
}

// Tables returns the registered definitions in load order. It fails when one
// of the loader's tables is missing, which usually means internal/core/tables
// was not imported.
func Tables() ([]TableDefinition, error) {
	defs := All()
	for _, key := range loaderTables {
		if !slices.ContainsFunc(defs, func(d TableDefinition) bool { return d.Info.Key == key }) {
			return nil, fmt.Errorf("table not registered: %s", key)
		}
	}
	return defs, nil
}
