// Command shopflow loads order exports into the shop database.
//
// Usage:
//
//	shopflow load orders.csv
//	shopflow load --lenient --format json orders.jsonl
//	shopflow load --dry-run orders.csv
//
// Configuration is read from the environment and an optional .env file; see
// internal/config for the variables.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/JonMunkholm/shopflow/internal/core/tables" // Register all tables
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopflow",
		Short:         "Load order exports into the shop database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newLoadCmd())
	return root
}
