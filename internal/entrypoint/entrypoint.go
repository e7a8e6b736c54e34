package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	http_controllers "github.com/mrlokans/weread2flomo/internal/http"
	"github.com/mrlokans/weread2flomo/internal/scheduler"
)

const defaultShutdownTimeout = 10 * time.Second

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// serve runs the HTTP server until ctx is cancelled or the process receives
// SIGINT/SIGTERM, then shuts it down within timeout.
func (a *App) serve(ctx context.Context, router http.Handler, addr string, timeout time.Duration, onShutdown ShutdownFunc) error {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", addr).Msg("Starting status server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Dur("timeout", timeout).Msg("Shutting down")
	case <-ctx.Done():
		a.Logger.Info().Dur("timeout", timeout).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work before the server so status requests keep working meanwhile.
	if onShutdown != nil {
		onShutdown(shutdownCtx)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.Logger.Info().Msg("Server exiting")
	return nil
}

// RunScheduled starts the cron scheduler and the status server and blocks
// until shutdown. The first pass runs immediately when runAtStart is set.
func (a *App) RunScheduled(ctx context.Context, runAtStart bool) error {
	cfg := a.Config

	opts := scheduler.Options{Schedule: cfg.Schedule.Cron}
	if a.Audit != nil && cfg.Audit.RetentionDays > 0 {
		opts.Cleaner = a.Audit
		opts.Retention = time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	}

	sched := scheduler.NewSyncScheduler(a.Syncer, opts, a.Logger.With().Str("component", "scheduler").Logger())
	if err := sched.Start(ctx); err != nil {
		return err
	}

	if runAtStart {
		if err := sched.RunNow(); err != nil {
			a.Logger.Warn().Err(err).Msg("Initial sync not started")
		}
	}

	routerCfg := http_controllers.RouterConfig{
		Scheduler: sched,
		Progress:  a.Syncer,
		Ledger:    a.Ledger,
		Logger:    a.Logger,
		Version:   a.Version,
	}
	if a.Database != nil {
		routerCfg.Database = a.Database
		routerCfg.AuditService = a.Audit
	}
	if a.Metrics != nil {
		routerCfg.MetricsHandler = a.Metrics.Handler()
	}

	gin.SetMode(gin.ReleaseMode)
	router := http_controllers.NewRouter(routerCfg)

	return a.serve(ctx, router, cfg.Server.Addr, defaultShutdownTimeout, func(context.Context) {
		sched.Stop()
	})
}
