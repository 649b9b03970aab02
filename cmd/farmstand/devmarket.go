package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/farmstand/internal/config"
	"example.com/farmstand/internal/devmarket"
	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/sqliteutil"
)

var devmarketCmd = &cobra.Command{
	Use:   "devmarket",
	Short: "Run a local marketplace API for development",
	Long: `Serves a SQLite-backed stand-in for the marketplace REST API so the
storefront can be exercised without the real backend. serve talks to it
at the default --api-url.`,
	RunE: runDevmarket,
}

func init() {
	flags := devmarketCmd.Flags()
	flags.String("addr", "127.0.0.1:8002", "HTTP listen address for the marketplace API")
	flags.String("market-db", "devmarket.db", "sqlite file for marketplace data")
	flags.Bool("seed", true, "seed an empty database with demo farms and an admin")
	flags.String("admin-email", "admin@farmstand.local", "seeded admin email")
	flags.String("admin-password", "admin", "seeded admin password")
}

func runDevmarket(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Format, cfg.Log.Level).With("component", "devmarket")

	flags := cmd.Flags()
	addr, _ := flags.GetString("addr")
	dbPath, _ := flags.GetString("market-db")

	db, err := sqliteutil.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := devmarket.NewStore(db)
	if err := store.Init(ctx); err != nil {
		return err
	}
	if seed, _ := flags.GetBool("seed"); seed {
		email, _ := flags.GetString("admin-email")
		password, _ := flags.GetString("admin-password")
		if err := store.Seed(ctx, email, password); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           devmarket.NewServer(store, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketplace API listening", "addr", addr, "db", dbPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return shutdown(logger, server)
}
