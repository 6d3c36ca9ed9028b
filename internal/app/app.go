// Package app ties the HTTP server and its background workers into one
// runnable unit.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/imoklv/imok/internal/config"
	"github.com/imoklv/imok/internal/health"
	"github.com/imoklv/imok/internal/observability"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner

	stop func()
}

// New wires an App. stop, if non-nil, is invoked once during shutdown
// to halt background tasks such as the offline sweep loop.
func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner, stop func()) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		Readiness:     readiness,
		stop:          stop,
	}
}

func (a *App) StopBackgroundTasks() {
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
}

// Run serves until ctx is canceled or the listener fails, then drains
// in-flight requests within HTTPShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.StopBackgroundTasks()
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down", "timeout", a.Config.HTTPShutdownTimeout.String())
	a.StopBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTPShutdownTimeout)
	defer cancel()
	return a.Server.Shutdown(shutdownCtx)
}
