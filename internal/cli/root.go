// Package cli implements the golem command line: document inspection and
// editing against a configured store, through the document API.
package cli

import (
	"context"
	"fmt"

	"github.com/leandroluk/golem/config"
	"github.com/leandroluk/golem/core"
	mongodriver "github.com/leandroluk/golem/driver/mongo"
	"github.com/leandroluk/golem/driver/memory"
	"github.com/leandroluk/golem/driver/postgres"
	"github.com/leandroluk/golem/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags and the session shared by all commands.
type RootOptions struct {
	ConfigPath string
	Database   string
	Pretty     bool

	// Driver, Logger and Config are filled by the root command from the
	// configuration; tests set them directly.
	Driver core.Driver
	Logger *zap.Logger
	Config config.Config

	registry *prometheus.Registry
}

// NewRootCommand creates the root command for the golem CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "golem",
		Short: "golem - document mapper toolbox",
		Long:  "Inspect and edit documents through golem's change-tracking document API.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database name (overrides configuration)")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "indent JSON output")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewUnsetCommand(opts))
	cmd.AddCommand(NewIncCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

// open loads the configuration and connects the configured store.
func (opts *RootOptions) open(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	opts.Config = cfg

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	opts.Logger = log

	if cfg.Log.DebugMiddleware {
		core.Use(core.DebugMiddleware(log))
	}
	if cfg.Metrics {
		opts.registry = prometheus.NewRegistry()
		mw, err := core.MetricsMiddleware(opts.registry)
		if err != nil {
			return err
		}
		core.Use(mw)
	}

	switch cfg.Driver {
	case config.DriverMongo:
		opts.Driver, err = mongodriver.NewMongoDriver(ctx, cfg.URI, cfg.Database, mongodriver.WithLogger(log))
	case config.DriverPostgres:
		opts.Driver, err = postgres.NewPostgresDriver(ctx, cfg.URI, postgres.WithLogger(log))
	default:
		opts.Driver = memory.NewMemoryDriver(cfg.Database)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	return opts.Driver.Connect(ctx)
}

// close reports gathered metrics and disconnects the store.
func (opts *RootOptions) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.registry != nil {
		familyList, err := opts.registry.Gather()
		if err == nil {
			for _, family := range familyList {
				opts.Logger.Info("metric", zap.String("name", family.GetName()), zap.Int("series", len(family.GetMetric())))
			}
		}
	}
	if opts.Logger != nil {
		_ = opts.Logger.Sync()
	}
	if opts.Driver == nil {
		return nil
	}
	return opts.Driver.Close(ctx)
}

// collection opens name on the session store.
func (opts *RootOptions) collection(ctx context.Context, name string) (*core.Collection, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("no store configured")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	collection := core.NewCollection(opts.Driver, name,
		core.WithDatabase(opts.Config.Database),
		core.WithLogger(log),
		core.WithDocumentPool(opts.Config.DocumentPool),
	)
	if ensurer, ok := opts.Driver.(interface {
		EnsureCollection(ctx context.Context, schema *core.SchemaCore) error
	}); ok {
		if err := ensurer.EnsureCollection(ctx, collection.Schema()); err != nil {
			return nil, err
		}
	}
	return collection, nil
}
