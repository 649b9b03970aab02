package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/farmstand/internal/checkout"
	"example.com/farmstand/internal/pages"
	"example.com/farmstand/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the storefront to browsers",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("listen", "", "HTTP listen address")
	flags.Int("admin-page-size", 0, "rows per admin listing page")
	flags.Bool("temporal-worker", true, "host the checkout worker in this process")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	var orch checkout.Orchestrator
	if rt.cfg.TemporalEnabled() {
		c, err := rt.dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()
		if rt.cfg.Temporal.Worker {
			w := checkout.RegisterWorker(c, rt.resolver(), logger)
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
			logger.Info("checkout worker started", "task_queue", checkout.TaskQueue)
		}
		orch = checkout.NewTemporalOrchestrator(c, logger)
	} else {
		orch = checkout.NewInlineOrchestrator(rt.resolver(), logger)
		logger.Info("temporal not configured, running checkout inline")
	}

	srv, err := web.NewServer(web.Options{
		Site:         pages.New(orch, rt.metrics, logger),
		Registry:     rt.registry,
		Metrics:      rt.metrics,
		CookieName:   rt.cfg.Session.CookieName,
		SecureCookie: rt.cfg.Session.SecureCookie,
		Logger:       logger.With("component", "web"),
	})
	if err != nil {
		return err
	}

	go rt.registry.RunSweeper(ctx, rt.cfg.Session.SweepInterval, rt.cfg.Session.IdleTTL)

	server := &http.Server{
		Addr:              rt.cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront listening", "addr", rt.cfg.ListenAddr, "api", rt.cfg.API.BaseURL, "temporal", rt.cfg.TemporalEnabled())
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

func shutdown(logger *slog.Logger, server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server stopped", "addr", server.Addr)
	return nil
}
