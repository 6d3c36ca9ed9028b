package command

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imoklv/imok/internal/app"
	"github.com/imoklv/imok/internal/config"
	"github.com/imoklv/imok/internal/health"
	"github.com/imoklv/imok/internal/http/handler"
	"github.com/imoklv/imok/internal/http/middleware"
	"github.com/imoklv/imok/internal/http/router"
	"github.com/imoklv/imok/internal/mail"
	"github.com/imoklv/imok/internal/observability"
	"github.com/imoklv/imok/internal/repository"
	"github.com/imoklv/imok/internal/service"
	"github.com/imoklv/imok/internal/store"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the offline sweep loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := runtime.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability shutdown failed", "error", err)
		}
	}()

	db, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	rdb, err := store.OpenRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	mailer, err := mail.NewSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	repo := repository.NewDeviceRepository(db)

	var cache service.NegativeLookupCache
	if rdb != nil {
		cache = service.NewRedisNegativeLookupCache(rdb, "imok:unknown")
	} else {
		cache = service.NewInMemoryNegativeLookupCache()
	}

	devices := service.NewDeviceService(repo, mailer, cache, cfg)
	sweeper := service.NewSweepService(repo, mailer, cfg, logger)

	var createLimiter router.CreateRateLimiterFunc
	if rdb != nil {
		createLimiter = middleware.NewDistributedRateLimiter(
			middleware.NewRedisFixedWindowLimiter(rdb, "imok:ratelimit"),
			cfg.CreateRateLimit,
			cfg.CreateRateWindow,
			middleware.FailureMode(cfg.RateLimitFailureMode),
			"create",
		).Middleware()
	}

	checkers := []health.Checker{health.NewDBChecker(db)}
	if rdb != nil {
		checkers = append(checkers, health.NewRedisChecker(rdb))
	}
	readiness := health.NewProbeRunner(2*time.Second, 2*time.Second, checkers...)

	h := router.NewRouter(router.Dependencies{
		Devices:           handler.NewDeviceHandler(devices, logger),
		CORSOrigins:       cfg.CORSOrigins,
		BodyLimit:         cfg.HTTPBodyLimit,
		CreateRateLimit:   cfg.CreateRateLimit,
		CreateRateWindow:  cfg.CreateRateWindow,
		CreateRateLimiter: createLimiter,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go runSweepLoop(sweepCtx, sweeper, logger, cfg.SweepInterval, sweepDone)

	a := app.New(cfg, logger, server, runtime, readiness, func() {
		stopSweep()
		<-sweepDone
	})
	return a.Run(ctx)
}

// runSweepLoop periodically notifies owners of devices that stopped
// pinging. It replaces the cron job the deployment would otherwise
// need.
func runSweepLoop(ctx context.Context, sweeper *service.SweepService, logger *slog.Logger, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
				// Transient (db hiccup); the next tick retries.
				logger.Error("offline sweep failed", "error", err)
			}
		}
	}
}
