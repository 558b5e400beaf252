package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed schema.sql
var schemaSQL string

// CreateSchema runs the embedded DDL. Every statement is idempotent.
func CreateSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	slog.Info("schema ready")
	return nil
}
