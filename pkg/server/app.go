package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalGate/internal/usecase"
	pkgcache "SignalGate/pkg/cache"
	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	applogger "SignalGate/pkg/logger"
)

// App wires the dispatcher and the HTTP server into one lifecycle:
// start both, wait for a termination signal, then shut down in reverse
// order so in-flight fan-out drains before the process exits.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	dispatcher *usecase.EventDispatcher
	http       *xhttp.Server
	cache      pkgcache.Service
}

// New creates the application. cache may be nil when no Redis
// collaborator is configured.
func New(cfg *config.Config, lgr *applogger.Logger, d *usecase.EventDispatcher, srv *xhttp.Server, cache pkgcache.Service) *App {
	return &App{
		cfg:        cfg,
		logger:     lgr,
		dispatcher: d,
		http:       srv,
		cache:      cache,
	}
}

// Run blocks until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if err := a.http.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	a.logger.Info("gateway started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("backbone", a.cfg.Backbone.Type),
		applogger.Strings("channels", a.cfg.Backbone.Channels))

	<-ctx.Done()
	a.logger.Info("shutdown signal received")

	timeout := a.cfg.Server.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.http.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", applogger.Error(err))
	}
	a.dispatcher.Shutdown()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("cache close", applogger.Error(err))
		}
	}

	a.logger.Info("gateway stopped")
	return nil
}
