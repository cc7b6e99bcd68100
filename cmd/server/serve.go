package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lanwatch/internal/adapter"
	"lanwatch/internal/config"
	"lanwatch/internal/handler"
	"lanwatch/internal/hub"
	"lanwatch/internal/logger"
	"lanwatch/internal/service"
	"lanwatch/internal/watcher"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner and serve the API and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	a.logger.Info().Str("version", version).Msg("Starting lanwatch")

	repo, err := a.openStore()
	if err != nil {
		return err
	}
	defer repo.Close()
	a.logger.Info().Str("path", cfg.Database.Path).Msg("Database opened")

	engine := service.NewReconcileEngine(repo, cfg.Scan.GraceScans, a.logger)
	orch := service.NewOrchestrator(a.discovery(), engine, cfg.Scan.Interval.Duration(), a.logger)

	wsHub := hub.New(orch, cfg.Server.AllowedOrigins, a.logger)
	orch.SetPublisher(wsHub)

	h := handler.NewDeviceHandler(service.NewQueryService(repo, orch, engine.GraceScans(), a.logger), orch, a.logger)
	h.SetPortProber(a.portScanner(false))
	if !cfg.Appliance.Disabled {
		h.SetApplianceDetector(adapter.NewPiholeDetector(cfg.Appliance.Timeout.Duration(), a.logger))
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(h, wsHub, cfg.Server.AllowedOrigins, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orch.Run(gctx)
	})

	g.Go(func() error {
		a.logger.Info().Str("addr", cfg.Server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.loadedFrom != "" {
		w := watcher.New(a.loadedFrom, a.reloadConfig, a.logger)
		g.Go(func() error {
			if err := w.Watch(gctx); err != nil {
				a.logger.Warn().Err(err).Msg("Config reload disabled")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.Info().Msg("Server stopped")
	return nil
}

// reloadConfig applies the settings that can change without a restart.
// Only logging.level is live; everything else is reported and ignored.
func (a *app) reloadConfig() {
	cfg, _, err := config.LoadFromPath(a.loadedFrom)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		a.logger.Warn().Err(err).Str("path", a.loadedFrom).Msg("Ignoring invalid config change")
		return
	}

	// Command-line flags still win over the file
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		a.logger.Warn().Err(err).Msg("Ignoring invalid log level")
	}

	if cfg.Summary() != a.cfg.Summary() {
		a.logger.Info().Str("settings", cfg.Summary()).Msg("Config changed; restart to apply")
	}
}
