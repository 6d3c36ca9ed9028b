package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/imoklv/imok/internal/config"
	"github.com/imoklv/imok/internal/domain"
	maildelivery "github.com/imoklv/imok/internal/mail"
	"github.com/imoklv/imok/internal/observability"
	"github.com/imoklv/imok/internal/repository"
)

// SweepResult summarizes one batch pass of the offline monitor.
type SweepResult struct {
	RunID    string
	Selected int
	Notified int
	Failed   int
	Duration time.Duration
}

// SweepService finds devices that went silent and emails their owners.
// One pass per invocation; the scheduler lives outside the process.
type SweepService struct {
	repo   repository.DeviceRepository
	mailer maildelivery.Sender
	cfg    *config.Config
	logger *slog.Logger
}

func NewSweepService(repo repository.DeviceRepository, mailer maildelivery.Sender, cfg *config.Config, logger *slog.Logger) *SweepService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepService{repo: repo, mailer: mailer, cfg: cfg, logger: logger}
}

// Run selects eligible devices and notifies their owners. A failed
// send is logged and skipped; the device keeps a NULL (or stale)
// last_notification and is retried on the next pass.
func (s *SweepService) Run(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	now := start.UTC()

	devices, err := s.repo.ListNotifiable(now, s.cfg.OfflineAfter, s.cfg.NotifyCooldown)
	if err != nil {
		observability.RecordSweepRun("error")
		return SweepResult{RunID: runID}, fmt.Errorf("list notifiable devices: %w", err)
	}

	var notified, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)
	for _, d := range devices {
		g.Go(func() error {
			if s.notifyOne(gctx, d, now) {
				notified.Add(1)
			} else {
				failed.Add(1)
			}
			// Per-device failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	result := SweepResult{
		RunID:    runID,
		Selected: len(devices),
		Notified: int(notified.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	observability.RecordSweepRun("success")
	observability.RecordSweepDuration(result.Duration)
	observability.AuditEvent(ctx, "sweep.completed",
		"run_id", result.RunID,
		"selected", result.Selected,
		"notified", result.Notified,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *SweepService) notifyOne(ctx context.Context, d domain.Device, now time.Time) bool {
	manageURL := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/?device=" + d.Hash
	subject, body := maildelivery.OfflineAlert(d, now, manageURL)

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MailSendTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, d.Email, subject, body); err != nil {
		observability.RecordNotification("offline_alert", "error")
		s.logger.Error("offline alert delivery failed",
			"device", observability.RedactHash(d.Hash),
			"error", err,
		)
		return false
	}

	// Stamp the cooldown only after the mail actually went out, so a
	// failed delivery is retried by the next sweep.
	if err := s.repo.MarkNotified(d.Hash, now); err != nil {
		observability.RecordNotification("offline_alert", "stamp_error")
		s.logger.Error("failed to stamp last_notification",
			"device", observability.RedactHash(d.Hash),
			"error", err,
		)
		return false
	}
	observability.RecordNotification("offline_alert", "success")
	return true
}
