package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/dashboard"
	"github.com/nrguardian/nrguardian/internal/observability"
	"github.com/nrguardian/nrguardian/internal/schema"
	"github.com/nrguardian/nrguardian/internal/server"
	"github.com/nrguardian/nrguardian/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long: `Start the HTTP server exposing template, metric discovery, and
dashboard endpoints. SIGINT or SIGTERM triggers a graceful shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		serverLogger, err := observability.NewServerLogger(cfg.Logging.Level)
		if err != nil {
			return err
		}
		defer func() { _ = serverLogger.Sync() }()

		client, err := newClient()
		if err != nil {
			return err
		}

		dashboards, err := dashboard.NewService(client, serverLogger)
		if err != nil {
			return err
		}

		schemaOpts := schema.ServiceOptions{
			Runner:    client,
			KeysetTTL: cfg.Cache.SchemaTTL,
			Logger:    serverLogger,
		}
		if cfg.Cache.Enabled {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			cache, err := store.Open(ctx, cfg.Store)
			cancel()
			if err != nil {
				serverLogger.Warn("schema cache unavailable", zap.Error(err))
			} else if err := cache.Migrate(cmd.Context()); err != nil {
				serverLogger.Warn("schema cache migration failed", zap.Error(err))
				_ = cache.Close()
			} else {
				defer cache.Close()
				schemaOpts.Store = cache
			}
		}

		schemaSvc, err := schema.NewService(schemaOpts)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Options{
			Config:     cfg,
			Logger:     serverLogger,
			Dashboards: dashboards,
			Schema:     schemaSvc,
			Version:    versionInfo.Version,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.Start()
		}()

		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func shutdownTimeout() time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides DASHBOARD_API_PORT)")
}
