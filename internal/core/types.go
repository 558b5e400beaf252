package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemPolicy decides what happens to an item whose fields cannot be coerced.
type ItemPolicy int

const (
	// ItemPolicyStrict fails the batch before anything is written.
	ItemPolicyStrict ItemPolicy = iota
	// ItemPolicyLenient drops the item with a warning.
	ItemPolicyLenient
)

// ParseItemPolicy converts "strict" or "lenient" (case-insensitive) to a policy.
func ParseItemPolicy(s string) (ItemPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ItemPolicyStrict, nil
	case "lenient":
		return ItemPolicyLenient, nil
	default:
		return ItemPolicyStrict, fmt.Errorf("unknown item policy %q (want strict or lenient)", s)
	}
}

func (p ItemPolicy) String() string {
	if p == ItemPolicyLenient {
		return "lenient"
	}
	return "strict"
}

// PayloadKind tells how the items of a row were delivered.
type PayloadKind int

const (
	PayloadAbsent     PayloadKind = iota // missing, empty, or null
	PayloadText                          // JSON text still to be parsed
	PayloadStructured                    // already decoded array
)

// ItemsPayload is the undecoded items cell of one row.
type ItemsPayload struct {
	Kind PayloadKind
	Text string // set for PayloadText
	List []any  // set for PayloadStructured; elements are usually map[string]any
}

// TextPayload wraps a raw items cell. Blank text counts as absent.
func TextPayload(s string) ItemsPayload {
	s = strings.TrimSpace(s)
	if s == "" {
		return ItemsPayload{}
	}
	return ItemsPayload{Kind: PayloadText, Text: s}
}

// StructuredPayload wraps an already decoded item list.
func StructuredPayload(list []any) ItemsPayload {
	if len(list) == 0 {
		return ItemsPayload{}
	}
	return ItemsPayload{Kind: PayloadStructured, List: list}
}

// Date is a timestamp that may be missing or unparseable.
type Date struct {
	Time  time.Time
	Valid bool
}

// Ptr returns nil for an invalid date.
func (d Date) Ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// Or returns the date when valid, otherwise fallback.
func (d Date) Or(fallback time.Time) time.Time {
	if d.Valid {
		return d.Time
	}
	return fallback
}

// OrderRow is one validated source row.
type OrderRow struct {
	Line          int // 1-based source line (CSV) or record number (JSON)
	OrderUUID     string
	CustomerUUID  string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	OrderDate     Date
	Status        string
	TotalAmount   float64
	Items         ItemsPayload
}

// Item is one normalized line item.
type Item struct {
	OrderUUID string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice float64
	LineTotal float64
}

// LineTotal is quantity times unit price, in cents.
func LineTotal(quantity int, unitPrice float64) float64 {
	return RoundCents(float64(quantity) * unitPrice)
}

// RoundCents rounds an amount to the two decimal places the price columns
// store, half away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// CustomerRecord is one entry of the customers view.
type CustomerRecord struct {
	OrderUUID    string
	CustomerUUID string
	Name         string
	Email        string
	Phone        string
	OrderDate    Date
}

// ProductRecord is one entry of the products view.
type ProductRecord struct {
	SKU       string
	Name      string
	UnitPrice float64
}

// OrderRecord is one entry of the orders view.
type OrderRecord struct {
	Line          int
	OrderUUID     string
	CustomerUUID  string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	OrderDate     Date
	Status        string
	TotalAmount   float64
}

// Views holds the entity projections of a batch.
type Views struct {
	Customers    []CustomerRecord
	Products     []ProductRecord
	Orders       []OrderRecord
	ItemsByOrder map[string][]Item
}

// Batch is the unit handed to [Loader.Load].
type Batch struct {
	ID       uuid.UUID
	FileName string
	Rows     []OrderRow
}

// BatchResult summarizes a committed batch.
type BatchResult struct {
	BatchID           uuid.UUID
	FileName          string
	Rows              int
	Items             int
	DroppedItems      int
	MalformedPayloads int
	Customers         int
	Products          int
	Orders            int
	OrderItems        int
	CreatedCustomers  int // minimal customers created while inserting orders
	CreatedProducts   int // minimal products created while inserting items
	Duration          time.Duration
}
