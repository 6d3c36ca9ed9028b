package command

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imoklv/imok/internal/config"
	"github.com/imoklv/imok/internal/mail"
	"github.com/imoklv/imok/internal/observability"
	"github.com/imoklv/imok/internal/repository"
	"github.com/imoklv/imok/internal/service"
	"github.com/imoklv/imok/internal/store"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one offline-notification pass and exit",
		Long:  "Selects devices whose last ping is older than the offline threshold and emails their owners. Intended for cron when the serve loop is not used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep()
		},
	}
}

func runSweep() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, _, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	mailer, err := mail.NewSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sweeper := service.NewSweepService(repository.NewDeviceRepository(db), mailer, cfg, logger)
	result, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("sweep finished",
		"run_id", result.RunID,
		"selected", result.Selected,
		"notified", result.Notified,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return nil
}
