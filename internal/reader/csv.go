package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/shopflow/internal/core"
)

// MaxHeaderSearchRows is the maximum number of records to scan for the header.
var MaxHeaderSearchRows = 20

// requiredColumns must all appear in the header row.
var requiredColumns = []string{"order_uuid", "customer_email"}

// headerIndex maps cleaned, lowercased column names to positions.
type headerIndex map[string]int

func makeHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// isHeader reports whether the record names every required column.
func (idx headerIndex) isHeader() bool {
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return false
		}
	}
	return true
}

// raw returns the trimmed cell of column, or "" when absent.
func (idx headerIndex) raw(record []string, column string) string {
	pos, ok := idx[column]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

// cell returns the cleaned cell of column.
func (idx headerIndex) cell(record []string, column string) string {
	return CleanCell(idx.raw(record, column))
}

// ReadCSV decodes CSV order rows. The header may be preceded by up to
// MaxHeaderSearchRows-1 records of preamble, which are ignored. Column order
// is free and names are matched case-insensitively.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	src, counter := wrapForStreaming(r, opts.MaxFileSize)

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	res := &Result{}
	var idx headerIndex
	records := 0

	for {
		if records%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		records++
		line, _ := cr.FieldPos(0)

		if idx == nil {
			candidate := makeHeaderIndex(record)
			if candidate.isHeader() {
				idx = candidate
				continue
			}
			if records >= MaxHeaderSearchRows {
				break
			}
			continue
		}

		if isEmptyRow(record) {
			continue
		}

		raw := core.RawRow{
			Line:          line,
			OrderUUID:     idx.cell(record, "order_uuid"),
			CustomerUUID:  idx.cell(record, "customer_uuid"),
			CustomerName:  idx.cell(record, "customer_name"),
			CustomerEmail: idx.cell(record, "customer_email"),
			CustomerPhone: idx.cell(record, "customer_phone"),
			OrderDate:     idx.cell(record, "order_date"),
			Status:        idx.cell(record, "status"),
			TotalAmount:   idx.cell(record, "total_amount"),
			Items:         core.TextPayload(idx.raw(record, "items")),
		}
		if err := res.add(ctx, raw, opts.Policy); err != nil {
			return nil, err
		}
	}

	if records == 0 {
		return nil, ErrEmptyFile
	}
	if idx == nil {
		return nil, fmt.Errorf("%w: header with %s not found in the first %d records",
			ErrMissingHeader, strings.Join(requiredColumns, ", "), MaxHeaderSearchRows)
	}

	res.Bytes = counter.read
	return res, nil
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
