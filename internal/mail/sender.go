package mail

import (
	"context"
	"fmt"
	"log/slog"

	appconfig "github.com/imoklv/imok/internal/config"
)

// Sender delivers a single HTML email. Implementations must be safe
// for concurrent use; the sweep job sends from multiple goroutines.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewSender picks the implementation from config: "ses" in production,
// "log" everywhere else.
func NewSender(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger) (Sender, error) {
	switch cfg.MailProvider {
	case "ses":
		return NewSESSender(ctx, cfg.SESRegion, cfg.MailFrom)
	case "log":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}
}

// LogSender writes the message to the log instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.logger.Info("mail suppressed by log sender",
		"to", to,
		"subject", subject,
		"body_bytes", len(htmlBody),
	)
	return nil
}
