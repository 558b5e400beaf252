package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const ordersCSV = `order_uuid,customer_uuid,customer_name,customer_email,customer_phone,order_date,status,total_amount,items
O1,C1,Ann,a@x.com,555-0100,2024-01-05,paid,19.98,"[{""sku"":""S1"",""name"":""Widget"",""quantity"":2,""unit_price"":9.99}]"
O2,C2,Bob,b@x.com,,2024-01-06,pending,5,not valid json
`

// setupEnv isolates the test from the host environment and returns the log
// file path.
func setupEnv(t *testing.T) string {
	t.Helper()
	for _, name := range []string{
		"DB_BACKEND", "DB_DRIVER", "DATABASE_URL", "DB_URL", "DB_PORT", "DB_NAME",
		"DB_MAX_CONNS", "DB_MIN_CONNS", "LOAD_ITEM_POLICY", "LOAD_TIMEOUT",
		"LOAD_CREATE_SCHEMA", "LOAD_MAX_FILE_SIZE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}

	logFile := filepath.Join(t.TempDir(), "etl.log")
	t.Setenv("LOG_FILE", logFile)

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	return logFile
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRunLoad_DryRun(t *testing.T) {
	logFile := setupEnv(t)
	input := writeFile(t, "orders.csv", ordersCSV)

	if err := runLoad(context.Background(), input, loadOptions{dryRun: true}); err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}

	out := readLog(t, logFile)
	for _, want := range []string{
		"extracting entities",
		"upserting customers",
		"upserting products",
		"inserting order",
		"failed to parse items",
		"ETL completed successfully",
		"orders=2",
		"order_items=1",
		"batch_id=",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRunLoad_StrictFailure(t *testing.T) {
	logFile := setupEnv(t)
	input := writeFile(t, "orders.jsonl",
		`{"order_uuid":"O1","customer_email":"a@x.com","items":[{"sku":"S1","quantity":"two"}]}`+"\n")

	err := runLoad(context.Background(), input, loadOptions{dryRun: true})
	if err == nil {
		t.Fatal("runLoad() expected error")
	}

	out := readLog(t, logFile)
	for _, want := range []string{"ETL failed", "code=VAL002", "retry_safe=false"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRunLoad_Lenient(t *testing.T) {
	logFile := setupEnv(t)
	input := writeFile(t, "orders.jsonl",
		`{"order_uuid":"O1","customer_email":"a@x.com","items":[{"sku":"S1","quantity":"two"},{"sku":"S2"}]}`+"\n")

	if err := runLoad(context.Background(), input, loadOptions{dryRun: true, lenient: true}); err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}
	if out := readLog(t, logFile); !strings.Contains(out, "dropped_items=1") {
		t.Errorf("log missing dropped item count:\n%s", out)
	}
}

func TestRunLoad_InvalidConfig(t *testing.T) {
	logFile := setupEnv(t)
	t.Setenv("LOAD_ITEM_POLICY", "sloppy")

	input := writeFile(t, "orders.csv", ordersCSV)
	if err := runLoad(context.Background(), input, loadOptions{dryRun: true}); err == nil {
		t.Fatal("runLoad() expected configuration error")
	}

	out := readLog(t, logFile)
	for _, want := range []string{"ETL failed", "LOAD_ITEM_POLICY", "retry_safe=false"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestRunLoad_UnreadableLogFile(t *testing.T) {
	setupEnv(t)
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "missing", "etl.log"))

	input := writeFile(t, "orders.csv", ordersCSV)
	err := runLoad(context.Background(), input, loadOptions{dryRun: true})
	if err == nil || !strings.Contains(err.Error(), "open log file") {
		t.Fatalf("runLoad() error = %v, want log file error", err)
	}
}

func TestLoadCommand(t *testing.T) {
	logFile := setupEnv(t)
	input := writeFile(t, "orders.csv", ordersCSV)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"load", "--dry-run", input})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out := readLog(t, logFile); !strings.Contains(out, "ETL completed successfully") {
		t.Errorf("log missing completion:\n%s", out)
	}

	cmd = newRootCmd()
	cmd.SetArgs([]string{"load"})
	if err := cmd.Execute(); err == nil {
		t.Error("Execute() without a file expected error")
	}

	cmd = newRootCmd()
	cmd.SetArgs([]string{"load", "--dry-run", "--format", "xml", input})
	if err := cmd.Execute(); err == nil {
		t.Error("Execute() with unknown format expected error")
	}
}
