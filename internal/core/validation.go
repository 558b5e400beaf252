package core

// validation.go builds OrderRow values from raw cells.
//
// Validation happens at two levels:
//  1. Struct tags on RawRow: required fields and column widths
//  2. Coercion: the order total must be a number (empty means zero)
//
// The first failure is reported as a ValidationError carrying the source line,
// so the operator can find the row in the file.

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Line      int    // Source line or record number, 0 when unknown
	OrderUUID string // Order the value belongs to, if known
	Field     string // Column or item field name
	Value     string // The invalid value
	Message   string // Human-readable error message
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.OrderUUID != "" {
		fmt.Fprintf(&b, "order %s: ", e.OrderUUID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Message)
	return b.String()
}

// RawRow holds the cells of one input row before coercion.
type RawRow struct {
	Line          int          `json:"-"`
	OrderUUID     string       `json:"order_uuid" validate:"required,max=64"`
	CustomerUUID  string       `json:"customer_uuid" validate:"max=64"`
	CustomerName  string       `json:"customer_name" validate:"max=255"`
	CustomerEmail string       `json:"customer_email" validate:"required,max=255"`
	CustomerPhone string       `json:"customer_phone" validate:"max=64"`
	OrderDate     string       `json:"order_date"`
	Status        string       `json:"status" validate:"max=32"`
	TotalAmount   string       `json:"total_amount"`
	Items         ItemsPayload `json:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report column names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewOrderRow validates raw and converts it to an OrderRow.
func NewOrderRow(raw RawRow) (OrderRow, error) {
	if err := validate.Struct(raw); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return OrderRow{}, ValidationError{
				Line:      raw.Line,
				OrderUUID: raw.OrderUUID,
				Field:     fe.Field(),
				Value:     fmt.Sprint(fe.Value()),
				Message:   describeFieldError(fe),
			}
		}
		return OrderRow{}, fmt.Errorf("validate line %d: %w", raw.Line, err)
	}

	total, err := ParseAmount(raw.TotalAmount)
	if err != nil {
		return OrderRow{}, ValidationError{
			Line:      raw.Line,
			OrderUUID: raw.OrderUUID,
			Field:     "total_amount",
			Value:     raw.TotalAmount,
			Message:   "invalid number",
		}
	}

	return OrderRow{
		Line:          raw.Line,
		OrderUUID:     raw.OrderUUID,
		CustomerUUID:  raw.CustomerUUID,
		CustomerName:  raw.CustomerName,
		CustomerEmail: raw.CustomerEmail,
		CustomerPhone: raw.CustomerPhone,
		OrderDate:     ParseDate(raw.OrderDate),
		Status:        raw.Status,
		TotalAmount:   total,
		Items:         raw.Items,
	}, nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("longer than %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
