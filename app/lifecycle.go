package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// Run serves HTTP until ctx is cancelled, SIGINT or SIGTERM is received, or
// the server fails, then shuts the application down.
func (a *App) Run(ctx context.Context) error {
	a.registerRoutes()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			a.logger.Error().Err(err).Msg("Server stopped unexpectedly")
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("Shutting down application")

		timeout := a.cfg.Server.Timeout.Shutdown
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err == nil {
		a.logger.Info().Msg("Graceful shutdown completed")
	}
	return err
}

// Shutdown stops modules, the HTTP server, the event publisher, tracing and the
// database, in that order. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		var errs []error
		if err := a.registry.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("modules: %w", err))
		}
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: %w", err))
		}
		errs = append(errs, a.closeResources(ctx)...)
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}

// closeResources releases the publisher, tracing and database. Nil members
// are skipped so a partially built App can be cleaned up.
func (a *App) closeResources(ctx context.Context) []error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	for _, err := range errs {
		a.logger.Error().Err(err).Msg("Failed to release resource")
	}
	return errs
}
