// Command docharvest extracts text, tables, images, metadata and links from
// pdf, docx and pptx files into an output tree and a relational database.
//
//	docharvest extract report.pdf slides.pptx --workers 8
//	docharvest schema
//	docharvest serve --listen :8090
//	docharvest mcp
//	docharvest formats
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/docharvest/config"
	"github.com/hazyhaar/docharvest/docpipe"
	"github.com/hazyhaar/docharvest/filesink"
	"github.com/hazyhaar/docharvest/pipeline"
	"github.com/hazyhaar/docharvest/sqlstore"
)

const version = "0.3.0"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgPath  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	a := &app{}
	root := a.rootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "docharvest:", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docharvest",
		Short:         "Extract normalized artifacts from pdf, docx and pptx documents",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "YAML config file (default: built-in defaults)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		a.extractCmd(),
		a.schemaCmd(),
		a.serveCmd(),
		a.mcpCmd(),
		a.formatsCmd(),
	)
	return root
}

// setup loads .env, the config file and environment overrides, then
// installs the JSON logger. Logs go to stderr so stdout stays free for
// results and the MCP stdio transport.
func (a *app) setup() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(a.logger)
	return nil
}

// openDB connects to the configured database and ensures the schema. It
// returns nil when the relational sink is disabled.
func (a *app) openDB(ctx context.Context) (*sqlstore.Store, error) {
	if !a.cfg.Database.Enabled() {
		return nil, nil
	}
	driver, dsn := a.cfg.Database.DSN()
	db, err := sqlstore.Open(ctx, driver, dsn, sqlstore.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if err := db.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// loaderConfig carries the size limits from the config into the loader.
func (a *app) loaderConfig() docpipe.Config {
	return docpipe.Config{
		MaxFileSize: a.cfg.MaxFileBytes(),
		MaxPartSize: a.cfg.MaxPartBytes(),
		Logger:      a.logger,
	}
}

// newPipeline wires loader, file sink and (optionally) the database. A
// database that cannot be reached is logged and skipped so file extraction
// still runs.
func (a *app) newPipeline(ctx context.Context, withDB bool, workers int) (*pipeline.Pipeline, func()) {
	var db *sqlstore.Store
	if withDB {
		var err error
		db, err = a.openDB(ctx)
		if err != nil {
			a.logger.Error("database unavailable, continuing with files only", "error", err)
			db = nil
		}
	}
	if workers <= 0 {
		workers = a.cfg.Workers
	}
	p := pipeline.New(pipeline.Config{
		Loader:  docpipe.NewLoader(a.loaderConfig()),
		Files:   filesink.New(a.cfg.OutputDir, a.logger),
		DB:      db,
		Workers: workers,
		Logger:  a.logger,
	})
	return p, func() {
		if db != nil {
			if err := db.Close(); err != nil && !errors.Is(err, sqlstore.ErrNotConnected) {
				a.logger.Error("close database", "error", err)
			}
		}
	}
}
