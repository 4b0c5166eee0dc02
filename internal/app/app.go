// Package app wires configuration, storage, domain services and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/catalog-admin/internal/storage/objectstore"
	"github.com/xenking/catalog-admin/internal/storage/postgres"
	"github.com/xenking/catalog-admin/pkg/health"
)

// Run creates all dependencies, serves HTTP until ctx is cancelled and then
// shuts down gracefully.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "create object store")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return errors.Wrap(err, "ensure bucket")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck("postgres", pool),
	})
	healthSvc.Register(health.Check{
		Name:    "storage",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck("storage", store),
	})
	healthSvc.Register(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Func: health.GoroutineCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)

	srv, err := newServer(ctx, m, cfg, pool, store, healthSvc)
	if err != nil {
		return err
	}
	defer srv.close()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.handler,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		healthSvc.MarkReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Wait()
	}()

	healthSvc.MarkReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
