// Package gormstore implements core.Store with gorm, so the loader can target
// PostgreSQL, MySQL or SQLite through one code path.
//
// Writes are built from the table registry: each row is created from a
// column map through its model, with an ON CONFLICT clause on the table's
// natural key, which gorm renders as ON DUPLICATE KEY UPDATE for MySQL.
package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/JonMunkholm/shopflow/internal/config"
	"github.com/JonMunkholm/shopflow/internal/core"
)

// Open connects to the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverMySQL:
		dialector = mysql.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewLogger(DefaultLoggerConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetMaxIdleConns(cfg.MinConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Store is a core.Store over a gorm connection.
type Store struct {
	db     *gorm.DB
	tables map[string]table
	models []any // load order
}

var _ core.Store = (*Store)(nil)

// table pairs a registered definition with the model its rows are written
// through. The model gives gorm the schema the dialects need to render upserts.
type table struct {
	def   core.TableDefinition
	model any
}

// New wraps db. The loader tables must be registered, usually by importing
// internal/core/tables.
func New(db *gorm.DB) (*Store, error) {
	defs, err := core.Tables()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]any)
	for _, model := range Models() {
		byName[model.(schema.Tabler).TableName()] = model
	}

	s := &Store{db: db, tables: make(map[string]table, len(defs))}
	for _, def := range defs {
		model, ok := byName[def.Info.Key]
		if !ok {
			return nil, fmt.Errorf("no model for table %s", def.Info.Key)
		}
		s.tables[def.Info.Key] = table{def: def, model: model}
		s.models = append(s.models, model)
	}
	return s, nil
}

// CreateSchema migrates the loader tables, parents first.
func (s *Store) CreateSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(s.models...); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &gormTx{db: db, tables: s.tables})
	})
}

// gormTx implements core.Tx inside a gorm transaction.
type gormTx struct {
	db     *gorm.DB
	tables map[string]table
}

// conflictMode selects the ON CONFLICT action of a write.
type conflictMode int

const (
	conflictUpdate conflictMode = iota
	conflictIgnore
)

// insert creates one row from params on db.
func (t table) insert(db *gorm.DB, params any, mode conflictMode) *gorm.DB {
	db = db.Model(t.model)
	if c, ok := onConflict(t.def, mode); ok {
		db = db.Clauses(c)
	}
	return db.Create(columnMap(t.def, params))
}

func (t *gormTx) write(ctx context.Context, key string, params any, mode conflictMode) error {
	return t.tables[key].insert(t.db.WithContext(ctx), params, mode).Error
}

func (t *gormTx) resolve(ctx context.Context, key string, value any) (int64, bool, error) {
	tbl := t.tables[key]

	var ids []int64
	err := t.db.WithContext(ctx).
		Model(tbl.model).
		Where(map[string]any{tbl.def.Info.UniqueKey[0]: value}).
		Limit(1).
		Pluck(tbl.def.Info.IDColumn, &ids).Error
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

func (t *gormTx) ResolveCustomer(ctx context.Context, email string) (int64, bool, error) {
	return t.resolve(ctx, core.TableCustomers, email)
}

func (t *gormTx) ResolveProduct(ctx context.Context, sku string) (int64, bool, error) {
	return t.resolve(ctx, core.TableProducts, sku)
}

func (t *gormTx) ResolveOrder(ctx context.Context, orderUUID string) (int64, bool, error) {
	return t.resolve(ctx, core.TableOrders, orderUUID)
}

func (t *gormTx) UpsertCustomer(ctx context.Context, p core.CustomerParams) error {
	return t.write(ctx, core.TableCustomers, p, conflictUpdate)
}

func (t *gormTx) CreateCustomerIfAbsent(ctx context.Context, p core.CustomerParams) error {
	return t.write(ctx, core.TableCustomers, p, conflictIgnore)
}

func (t *gormTx) UpsertProduct(ctx context.Context, p core.ProductParams) error {
	return t.write(ctx, core.TableProducts, p, conflictUpdate)
}

func (t *gormTx) CreateProductIfAbsent(ctx context.Context, p core.ProductParams) error {
	return t.write(ctx, core.TableProducts, p, conflictIgnore)
}

func (t *gormTx) UpsertOrder(ctx context.Context, p core.OrderParams) error {
	return t.write(ctx, core.TableOrders, p, conflictUpdate)
}

func (t *gormTx) UpsertOrderItem(ctx context.Context, p core.OrderItemParams) error {
	return t.write(ctx, core.TableOrderItems, p, conflictUpdate)
}

func (t *gormTx) RecordBatch(ctx context.Context, p core.BatchParams) error {
	return t.write(ctx, core.TableBatches, p, conflictUpdate)
}

// onConflict builds the conflict clause of a write. Insert-only tables get
// none, so a repeated key fails. An ignored conflict is rendered by MySQL as a
// no-op assignment of the primary key.
func onConflict(def core.TableDefinition, mode conflictMode) (clause.OnConflict, bool) {
	cols := make([]clause.Column, len(def.Info.UniqueKey))
	for i, name := range def.Info.UniqueKey {
		cols[i] = clause.Column{Name: name}
	}

	switch {
	case mode == conflictIgnore:
		return clause.OnConflict{Columns: cols, DoNothing: true}, true
	case len(def.UpdateColumns) == 0:
		return clause.OnConflict{}, false
	default:
		return clause.OnConflict{
			Columns:   cols,
			DoUpdates: clause.AssignmentColumns(def.UpdateColumns),
		}, true
	}
}

// columnMap pairs the definition's columns with the row values.
func columnMap(def core.TableDefinition, params any) map[string]any {
	values := def.RowValues(params)
	row := make(map[string]any, len(values))
	for i, col := range def.Columns {
		row[col] = toColumn(values[i])
	}
	return row
}

// toColumn maps domain values to types every gorm driver accepts.
func toColumn(v any) any {
	switch v := v.(type) {
	case core.Date:
		return v.Ptr()
	case uuid.UUID:
		return v.String()
	case time.Time:
		return v.UTC()
	default:
		return v
	}
}
