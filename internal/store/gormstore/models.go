package gormstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/shopflow/internal/core"
)

// Customer maps the customers table.
type Customer struct {
	CustomerID   int64     `gorm:"column:customer_id;primaryKey;autoIncrement"`
	CustomerUUID *string   `gorm:"column:customer_uuid;size:64"`
	Name         string    `gorm:"column:name;size:255;not null;default:''"`
	Email        string    `gorm:"column:email;size:255;not null;uniqueIndex:uq_customers_email"`
	Phone        *string   `gorm:"column:phone;size:64"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (Customer) TableName() string { return core.TableCustomers }

// Product maps the products table.
type Product struct {
	ProductID int64     `gorm:"column:product_id;primaryKey;autoIncrement"`
	SKU       string    `gorm:"column:sku;size:64;not null;uniqueIndex:uq_products_sku"`
	Name      string    `gorm:"column:name;size:255;not null;default:''"`
	Price     float64   `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (Product) TableName() string { return core.TableProducts }

// Order maps the orders table. Parent and child share key column names, so
// associations carry an explicit belongsTo: the foreign key lives on the child.
type Order struct {
	OrderID     int64      `gorm:"column:order_id;primaryKey;autoIncrement"`
	OrderUUID   string     `gorm:"column:order_uuid;size:64;not null;uniqueIndex:uq_orders_order_uuid"`
	CustomerID  int64      `gorm:"column:customer_id;not null;index"`
	Customer    *Customer  `gorm:"foreignKey:CustomerID;references:CustomerID;belongsTo"`
	OrderDate   *time.Time `gorm:"column:order_date"`
	TotalAmount float64    `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	Status      string     `gorm:"column:status;size:32;not null;default:'unknown'"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;autoCreateTime:false"`
}

func (Order) TableName() string { return core.TableOrders }

// OrderItem maps the order_items table.
type OrderItem struct {
	OrderItemID int64    `gorm:"column:order_item_id;primaryKey;autoIncrement"`
	OrderID     int64    `gorm:"column:order_id;not null;uniqueIndex:uq_order_items_order_product,priority:1"`
	Order       *Order   `gorm:"foreignKey:OrderID;references:OrderID;belongsTo"`
	ProductID   int64    `gorm:"column:product_id;not null;uniqueIndex:uq_order_items_order_product,priority:2;index"`
	Product     *Product `gorm:"foreignKey:ProductID;references:ProductID;belongsTo"`
	Quantity    int      `gorm:"column:quantity;not null;check:chk_order_items_quantity,quantity >= 1"`
	UnitPrice   float64  `gorm:"column:unit_price;type:numeric(12,2);not null;default:0"`
	LineTotal   float64  `gorm:"column:line_total;type:numeric(12,2);not null;default:0"`
}

func (OrderItem) TableName() string { return core.TableOrderItems }

// Batch maps the etl_batches table.
type Batch struct {
	BatchID      uuid.UUID `gorm:"column:batch_id;type:varchar(36);primaryKey"`
	FileName     string    `gorm:"column:file_name;not null;default:''"`
	RowsRead     int       `gorm:"column:rows_read;not null;default:0"`
	ItemsRead    int       `gorm:"column:items_read;not null;default:0"`
	ItemsDropped int       `gorm:"column:items_dropped;not null;default:0"`
	Customers    int       `gorm:"column:customers;not null;default:0"`
	Products     int       `gorm:"column:products;not null;default:0"`
	Orders       int       `gorm:"column:orders;not null;default:0"`
	OrderItems   int       `gorm:"column:order_items;not null;default:0"`
	StartedAt    time.Time `gorm:"column:started_at;not null"`
	FinishedAt   time.Time `gorm:"column:finished_at;not null"`
}

func (Batch) TableName() string { return core.TableBatches }

// Models lists the tables in dependency order.
func Models() []any {
	return []any{&Customer{}, &Product{}, &Order{}, &OrderItem{}, &Batch{}}
}
