package pgstore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/shopflow/internal/core"
)

// statements holds the SQL of one table, generated from its definition.
type statements struct {
	def            core.TableDefinition
	upsert         string // insert, or refresh UpdateColumns on conflict
	insertIfAbsent string // insert, or do nothing on conflict
	resolve        string // id by natural key
}

func buildStatements(def core.TableDefinition) statements {
	return statements{
		def:            def,
		upsert:         upsertSQL(def),
		insertIfAbsent: insertIfAbsentSQL(def),
		resolve:        resolveSQL(def),
	}
}

func insertSQL(def core.TableDefinition) string {
	cols := make([]string, len(def.Columns))
	placeholders := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		cols[i] = quoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(def.Info.Key),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
}

// upsertSQL falls back to a plain insert for insert-only tables, so a
// repeated key is reported as a unique violation.
func upsertSQL(def core.TableDefinition) string {
	if len(def.UpdateColumns) == 0 {
		return insertSQL(def)
	}
	sets := make([]string, len(def.UpdateColumns))
	for i, col := range def.UpdateColumns {
		q := quoteIdentifier(col)
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		insertSQL(def), conflictTarget(def), strings.Join(sets, ", "))
}

func insertIfAbsentSQL(def core.TableDefinition) string {
	return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", insertSQL(def), conflictTarget(def))
}

func resolveSQL(def core.TableDefinition) string {
	conds := make([]string, len(def.Info.UniqueKey))
	for i, col := range def.Info.UniqueKey {
		conds[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(col), i+1)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		quoteIdentifier(def.Info.IDColumn),
		quoteIdentifier(def.Info.Key),
		strings.Join(conds, " AND "),
	)
}

func conflictTarget(def core.TableDefinition) string {
	cols := make([]string, len(def.Info.UniqueKey))
	for i, col := range def.Info.UniqueKey {
		cols[i] = quoteIdentifier(col)
	}
	return strings.Join(cols, ", ")
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// args converts row values to pgx arguments.
func args(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = toPg(v)
	}
	return out
}

// toPg maps domain values that pgx cannot encode directly.
func toPg(v any) any {
	switch v := v.(type) {
	case core.Date:
		return pgtype.Timestamptz{Time: v.Time, Valid: v.Valid}
	case uuid.UUID:
		return pgtype.UUID{Bytes: [16]byte(v), Valid: true}
	default:
		return v
	}
}
