package reader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/JonMunkholm/shopflow/internal/core"
)

// ReadJSON decodes JSON order rows, either one object per line or a single
// top-level array. Row numbers count records starting at 1.
func ReadJSON(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	src, counter := wrapForStreaming(r, opts.MaxFileSize)
	br := bufio.NewReader(src)

	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()
	res := &Result{}

	decodeRecord := func(n int) error {
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			return fmt.Errorf("parse json record %d: %w", n, err)
		}
		return res.add(ctx, rawFromJSON(n, obj), opts.Policy)
	}

	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		for n := 1; dec.More(); n++ {
			if err := decodeRecord(n); err != nil {
				return nil, err
			}
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	} else {
		for n := 1; dec.More(); n++ {
			if err := decodeRecord(n); err != nil {
				return nil, err
			}
		}
	}

	res.Bytes = counter.read
	return res, nil
}

// peekNonSpace returns the first non-whitespace byte without consuming it.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

// rawFromJSON maps a decoded object to a RawRow. Keys match case-insensitively.
func rawFromJSON(n int, obj map[string]json.RawMessage) core.RawRow {
	fields := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		fields[strings.ToLower(strings.TrimSpace(k))] = v
	}

	return core.RawRow{
		Line:          n,
		OrderUUID:     scalar(fields["order_uuid"]),
		CustomerUUID:  scalar(fields["customer_uuid"]),
		CustomerName:  scalar(fields["customer_name"]),
		CustomerEmail: scalar(fields["customer_email"]),
		CustomerPhone: scalar(fields["customer_phone"]),
		OrderDate:     scalar(fields["order_date"]),
		Status:        scalar(fields["status"]),
		TotalAmount:   scalar(fields["total_amount"]),
		Items:         itemsPayload(fields["items"]),
	}
}

// scalar renders a JSON string, number or bool as text. null and missing are "".
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(raw)
}

// itemsPayload keeps arrays structured and strings as text for the normalizer.
// Any other value is passed on as text so it is reported as malformed.
func itemsPayload(raw json.RawMessage) core.ItemsPayload {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return core.ItemsPayload{}
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return core.TextPayload(string(raw))
		}
		return core.TextPayload(s)
	case '[':
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var list []any
		if err := dec.Decode(&list); err != nil {
			return core.TextPayload(string(raw))
		}
		return core.StructuredPayload(list)
	default:
		return core.ItemsPayload{Kind: core.PayloadText, Text: string(raw)}
	}
}
