package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/JonMunkholm/shopflow/internal/logging"
)

var errMissingSKU = errors.New("missing sku")

// ItemNormalizer flattens the items payloads of a batch into Items.
// Counters are updated as the sequence is consumed.
type ItemNormalizer struct {
	Policy    ItemPolicy
	Dropped   int // items skipped: empty SKU, or coercion failure under the lenient policy
	Malformed int // payloads that could not be read as an array of objects
}

// NormalizeItems returns the items of rows as a lazy sequence.
func NormalizeItems(ctx context.Context, rows []OrderRow, policy ItemPolicy) iter.Seq2[Item, error] {
	n := &ItemNormalizer{Policy: policy}
	return n.Items(ctx, rows)
}

// Items yields one Item per usable element of each row's payload, in row order
// then payload order. Under the strict policy the first coercion failure is
// yielded as a ValidationError and the sequence ends.
func (n *ItemNormalizer) Items(ctx context.Context, rows []OrderRow) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		logger := logging.FromContext(ctx)

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				yield(Item{}, err)
				return
			}

			elems, err := payloadElements(row.Items)
			if err != nil {
				n.Malformed++
				logger.Error("failed to parse items",
					"order_uuid", row.OrderUUID,
					"line", row.Line,
					"error", err,
				)
				continue
			}

			for i, elem := range elems {
				obj, ok := elem.(map[string]any)
				if !ok {
					n.Dropped++
					logger.Warn("skipping item that is not an object",
						"order_uuid", row.OrderUUID,
						"line", row.Line,
						"position", i,
					)
					continue
				}

				item, err := coerceItem(row.OrderUUID, obj)
				if errors.Is(err, errMissingSKU) {
					n.Dropped++
					logger.Warn("skipping item without sku",
						"order_uuid", row.OrderUUID,
						"line", row.Line,
						"position", i,
					)
					continue
				}
				if err != nil {
					var verr ValidationError
					if errors.As(err, &verr) {
						verr.Line = row.Line
						err = verr
					}
					if n.Policy == ItemPolicyLenient {
						n.Dropped++
						logger.Warn("dropping item", "line", row.Line, "position", i, "error", err)
						continue
					}
					yield(Item{}, err)
					return
				}

				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// payloadElements decodes a payload into its array elements.
func payloadElements(p ItemsPayload) ([]any, error) {
	switch p.Kind {
	case PayloadStructured:
		return p.List, nil
	case PayloadText:
		dec := json.NewDecoder(strings.NewReader(p.Text))
		dec.UseNumber()

		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("parse items json: %w", err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("parse items json: trailing data after array")
		}
		switch v := decoded.(type) {
		case nil:
			return nil, nil
		case []any:
			return v, nil
		default:
			return nil, fmt.Errorf("parse items json: expected array, got %T", decoded)
		}
	default:
		return nil, nil
	}
}

// coerceItem builds an Item from one decoded element. Missing quantity is 1
// and missing unit_price is 0. The unit price is rounded to cents before the
// line total is computed, so the stored columns agree.
func coerceItem(orderUUID string, obj map[string]any) (Item, error) {
	sku := toText(obj["sku"])
	if sku == "" {
		return Item{}, errMissingSKU
	}

	invalid := func(field string, value any, msg string) ValidationError {
		return ValidationError{
			OrderUUID: orderUUID,
			Field:     "items." + field,
			Value:     fmt.Sprint(value),
			Message:   fmt.Sprintf("sku %s: %s", sku, msg),
		}
	}

	quantity := 1
	if v, ok := obj["quantity"]; ok && v != nil {
		q, err := toQuantity(v)
		if err != nil {
			return Item{}, invalid("quantity", v, err.Error())
		}
		if q < 1 {
			return Item{}, invalid("quantity", v, "must be at least 1")
		}
		quantity = q
	}

	unitPrice := 0.0
	if v, ok := obj["unit_price"]; ok && v != nil {
		p, err := toFloat(v)
		if err != nil {
			return Item{}, invalid("unit_price", v, err.Error())
		}
		if p < 0 {
			return Item{}, invalid("unit_price", v, "must not be negative")
		}
		unitPrice = RoundCents(p)
	}

	return Item{
		OrderUUID: orderUUID,
		SKU:       sku,
		Name:      toText(obj["name"]),
		Quantity:  quantity,
		UnitPrice: unitPrice,
		LineTotal: LineTotal(quantity, unitPrice),
	}, nil
}
