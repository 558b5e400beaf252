package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shopflow/internal/config"
	"github.com/JonMunkholm/shopflow/internal/core"
	"github.com/JonMunkholm/shopflow/internal/logging"
	"github.com/JonMunkholm/shopflow/internal/reader"
	"github.com/JonMunkholm/shopflow/internal/store/gormstore"
	"github.com/JonMunkholm/shopflow/internal/store/memstore"
	"github.com/JonMunkholm/shopflow/internal/store/pgstore"
)

type loadOptions struct {
	format       string
	lenient      bool
	dryRun       bool
	createSchema bool
	backend      string
	driver       string
}

func newLoadCmd() *cobra.Command {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load one CSV or JSON order file in a single transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "", "Input format: csv or json (default: from file extension)")
	cmd.Flags().BoolVar(&opts.lenient, "lenient", false, "Drop invalid rows and items instead of failing (overrides LOAD_ITEM_POLICY)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Run the whole pipeline against an in-memory store")
	cmd.Flags().BoolVar(&opts.createSchema, "create-schema", false, "Create missing tables before loading (overrides LOAD_CREATE_SCHEMA)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Store backend: pgx or gorm (overrides DB_BACKEND)")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "Database: postgres, mysql or sqlite (overrides DB_DRIVER)")

	return cmd
}

// runLoad executes one batch. Every failure is logged here with its code, so
// callers only need the exit status.
func runLoad(ctx context.Context, path string, opts loadOptions) error {
	dotenv := godotenv.Load() == nil

	cfg, err := loadConfig(opts)
	if err != nil {
		lc := config.LoadLogging()
		closer, _ := logging.Setup(lc.Level, lc.Format, lc.File)
		defer closer.Close()
		reportFailure(ctx, err)
		return err
	}

	closer, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		// Console only; the file could not be opened.
		_, _ = logging.Setup(cfg.Logging.Level, cfg.Logging.Format, "")
		reportFailure(ctx, err)
		return err
	}
	defer closer.Close()

	batchID := uuid.New()
	ctx = logging.WithBatchID(ctx, batchID.String())
	logger := logging.FromContext(ctx)

	logger.Info("configuration loaded",
		"dotenv", dotenv,
		"backend", cfg.Database.Backend,
		"driver", cfg.Database.Driver,
		"item_policy", cfg.Load.ItemPolicy,
		"dry_run", opts.dryRun,
	)
	logger.Debug("configuration", "config", cfg.String())

	result, err := execute(ctx, cfg, path, opts, batchID)
	if err != nil {
		reportFailure(ctx, err)
		return err
	}

	logger.Info("ETL completed successfully",
		"file", result.FileName,
		"rows", result.Rows,
		"customers", result.Customers,
		"products", result.Products,
		"orders", result.Orders,
		"order_items", result.OrderItems,
		"dropped_items", result.DroppedItems,
		"malformed_payloads", result.MalformedPayloads,
		"created_customers", result.CreatedCustomers,
		"created_products", result.CreatedProducts,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return nil
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts loadOptions) (*config.Config, error) {
	return config.LoadWith(func(cfg *config.Config) {
		if opts.lenient {
			cfg.Load.ItemPolicy = core.ItemPolicyLenient.String()
		}
		if opts.createSchema {
			cfg.Load.CreateSchema = true
		}
		if opts.backend != "" {
			cfg.Database.Backend = opts.backend
		}
		if opts.driver != "" {
			cfg.Database.Driver = opts.driver
		}
	})
}

func execute(ctx context.Context, cfg *config.Config, path string, opts loadOptions, batchID uuid.UUID) (*core.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Load.Timeout)
	defer cancel()

	logger := logging.FromContext(ctx)

	policy, err := core.ParseItemPolicy(cfg.Load.ItemPolicy)
	if err != nil {
		return nil, err
	}
	format, err := reader.ParseFormat(opts.format)
	if err != nil {
		return nil, err
	}

	src, err := reader.Open(path, format)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	logger.Info("reading input", "file", src.Name(), "format", src.Format(), "bytes", src.Size())
	rows, err := src.Read(ctx, reader.Options{Policy: policy, MaxFileSize: cfg.Load.MaxFileSize})
	if err != nil {
		return nil, err
	}
	if rows.Skipped > 0 {
		logger.Warn("invalid rows skipped", "count", rows.Skipped)
	}

	store, closeStore, err := openStore(ctx, cfg, opts.dryRun)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	loader := core.NewLoader(store, core.WithItemPolicy(policy))
	return loader.Load(ctx, core.Batch{ID: batchID, FileName: src.Name(), Rows: rows.Rows})
}

type schemaCreator interface {
	CreateSchema(ctx context.Context) error
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, dryRun bool) (core.Store, func(), error) {
	if dryRun {
		logging.FromContext(ctx).Info("dry run: using in-memory store, nothing is written")
		return memstore.New(), func() {}, nil
	}

	var (
		store   core.Store
		release func()
	)

	switch cfg.Database.Backend {
	case config.BackendGorm:
		db, err := gormstore.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		release = func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		s, err := gormstore.New(db)
		if err != nil {
			release()
			return nil, nil, err
		}
		store = s

	default:
		pool, err := pgstore.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		release = pool.Close
		s, err := pgstore.NewStore(pool)
		if err != nil {
			release()
			return nil, nil, err
		}
		store = s
	}

	if cfg.Load.CreateSchema {
		if err := store.(schemaCreator).CreateSchema(ctx); err != nil {
			release()
			return nil, nil, err
		}
	}
	return store, release, nil
}

// reportFailure logs err with its mapped code and whether a re-run is safe.
func reportFailure(ctx context.Context, err error) {
	logging.FromContext(ctx).Error("ETL failed",
		"error", err,
		"code", core.MapError(err).Code,
		"hint", core.FormatUserError(err),
		"retry_safe", core.IsTransient(err),
	)
}
