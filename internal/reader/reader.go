// Package reader decodes order export files into validated core.OrderRow values.
//
// Two input shapes are supported: CSV with a header row, and JSON written
// either one object per line or as a single top-level array. Every file goes
// through the same streaming chain (size limit, BOM skipping, UTF-8 sanitation)
// before it is decoded.
package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/shopflow/internal/core"
	"github.com/JonMunkholm/shopflow/internal/logging"
)

var (
	// ErrUnsupportedFormat is returned for unknown formats and extensions.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMissingHeader is returned when no header row with the required columns is found.
	ErrMissingHeader = errors.New("missing required column")
	// ErrEmptyFile is returned for input without any records.
	ErrEmptyFile = errors.New("empty file")
)

// ContextCheckInterval is how often, in records, to check for cancellation.
var ContextCheckInterval = 100

// Format identifies an input encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat converts a --format value. "" and "auto" mean detect by extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "csv":
		return FormatCSV, nil
	case "json", "jsonl", "ndjson":
		return FormatJSON, nil
	default:
		return FormatAuto, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// DetectFormat chooses a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	default:
		return FormatAuto, fmt.Errorf("%w: cannot infer format of %s, pass --format", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Options controls decoding.
type Options struct {
	// Policy decides whether an invalid row fails the read (strict) or is
	// skipped with a warning (lenient).
	Policy core.ItemPolicy

	// MaxFileSize caps the bytes read; 0 means unlimited.
	MaxFileSize int64
}

// Result holds the decoded rows of one file.
type Result struct {
	Rows    []core.OrderRow
	Skipped int   // invalid rows dropped under the lenient policy
	Bytes   int64 // bytes consumed from the source
}

// add validates raw and appends it, applying the row policy.
func (r *Result) add(ctx context.Context, raw core.RawRow, policy core.ItemPolicy) error {
	row, err := core.NewOrderRow(raw)
	if err != nil {
		if policy == core.ItemPolicyLenient {
			r.Skipped++
			logging.FromContext(ctx).Warn("skipping invalid row", "line", raw.Line, "error", err)
			return nil
		}
		return err
	}
	r.Rows = append(r.Rows, row)
	return nil
}

// Source is an opened input file.
type Source struct {
	file   *os.File
	name   string
	format Format
	size   int64
}

// Open opens path for reading. With FormatAuto the format is taken from the
// file extension.
func Open(path string, format Format) (*Source, error) {
	if format == FormatAuto {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open input: %s is a directory", path)
	}

	return &Source{file: f, name: filepath.Base(path), format: format, size: info.Size()}, nil
}

// Name returns the base name of the file.
func (s *Source) Name() string { return s.name }

// Format returns the format the source will be decoded with.
func (s *Source) Format() Format { return s.format }

// Size returns the file size in bytes.
func (s *Source) Size() int64 { return s.size }

// Close closes the underlying file.
func (s *Source) Close() error { return s.file.Close() }

// Read decodes the whole file.
func (s *Source) Read(ctx context.Context, opts Options) (*Result, error) {
	if opts.MaxFileSize > 0 && s.size > opts.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, s.name, s.size, opts.MaxFileSize)
	}

	switch s.format {
	case FormatCSV:
		return ReadCSV(ctx, s.file, opts)
	case FormatJSON:
		return ReadJSON(ctx, s.file, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s.format)
	}
}
