package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/checkout"
	"example.com/farmstand/internal/config"
	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/metrics"
	"example.com/farmstand/internal/sqliteutil"
	"example.com/farmstand/internal/tokenstore"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "farmstand",
	Short:         "Storefront for the farm marketplace API",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./farmstand.yaml when present)")
	flags.String("api-url", "", "marketplace API base URL")
	flags.Duration("api-timeout", 0, "marketplace API call timeout (0 = none)")
	flags.String("db", "", "sqlite file holding the bearer-token mirror")
	flags.String("log-format", "", "log format: json or console")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("temporal", "", "Temporal frontend host:port (empty runs checkout inline)")
	flags.String("temporal-namespace", "", "Temporal namespace")

	rootCmd.AddCommand(serveCmd, workerCmd, probeCmd, devmarketCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "farmstand:", err)
		os.Exit(1)
	}
}

// runtime is what every command shares once configuration is loaded.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	metrics  *metrics.Metrics
	registry *app.Registry
}

func bootstrap(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log.Format, cfg.Log.Level)

	db, err := sqliteutil.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}
	tokens := tokenstore.NewStore(db)
	if err := tokens.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init token schema: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}
	registry := app.NewRegistry(app.Options{
		BaseURL:       cfg.API.BaseURL,
		HTTPClient:    &http.Client{Timeout: cfg.API.Timeout},
		Tokens:        tokens,
		Metrics:       m,
		Logger:        logger,
		AdminPageSize: cfg.Admin.PageSize,
	})
	return &runtime{cfg: cfg, logger: logger, db: db, metrics: m, registry: registry}, nil
}

func (rt *runtime) Close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close token db failed", "error", err)
	}
}

// resolver hands checkout activities the API client of a browser.
func (rt *runtime) resolver() checkout.Resolver {
	return checkout.ResolverFunc(func(ctx context.Context, browserID string) (checkout.OrderAPI, error) {
		c, err := rt.registry.Client(ctx, browserID)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func (rt *runtime) dialTemporal() (temporalclient.Client, error) {
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  rt.cfg.Temporal.HostPort,
		Namespace: rt.cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(rt.logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", rt.cfg.Temporal.HostPort, err)
	}
	return c, nil
}
