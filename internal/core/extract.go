package core

// DefaultStatus is stored for orders that arrive without one.
const DefaultStatus = "unknown"

// Extract projects rows and their items into entity views. Customers and
// products are deduplicated by natural key with the first occurrence winning;
// orders keep every row in input order. Inputs are not modified.
func Extract(rows []OrderRow, items []Item) Views {
	views := Views{
		Customers:    make([]CustomerRecord, 0, len(rows)),
		Orders:       make([]OrderRecord, 0, len(rows)),
		ItemsByOrder: make(map[string][]Item),
	}

	seenEmails := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seenEmails[row.CustomerEmail]; !ok {
			seenEmails[row.CustomerEmail] = struct{}{}
			views.Customers = append(views.Customers, CustomerRecord{
				OrderUUID:    row.OrderUUID,
				CustomerUUID: row.CustomerUUID,
				Name:         row.CustomerName,
				Email:        row.CustomerEmail,
				Phone:        row.CustomerPhone,
				OrderDate:    row.OrderDate,
			})
		}

		status := row.Status
		if status == "" {
			status = DefaultStatus
		}
		views.Orders = append(views.Orders, OrderRecord{
			Line:          row.Line,
			OrderUUID:     row.OrderUUID,
			CustomerUUID:  row.CustomerUUID,
			CustomerName:  row.CustomerName,
			CustomerEmail: row.CustomerEmail,
			CustomerPhone: row.CustomerPhone,
			OrderDate:     row.OrderDate,
			Status:        status,
			TotalAmount:   row.TotalAmount,
		})
	}

	seenSKUs := make(map[string]struct{})
	for _, item := range items {
		if _, ok := seenSKUs[item.SKU]; !ok {
			seenSKUs[item.SKU] = struct{}{}
			views.Products = append(views.Products, ProductRecord{
				SKU:       item.SKU,
				Name:      item.Name,
				UnitPrice: item.UnitPrice,
			})
		}
		views.ItemsByOrder[item.OrderUUID] = append(views.ItemsByOrder[item.OrderUUID], item)
	}

	return views
}
