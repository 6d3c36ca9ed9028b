package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at startup from the environment and passed by
// reference. No package reads os.Getenv after Load returns.
type Config struct {
	AppEnv string

	HTTPAddr            string
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPShutdownTimeout time.Duration
	HTTPBodyLimit       int64

	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MailProvider    string
	MailFrom        string
	SESRegion       string
	MailSendTimeout time.Duration

	PublicBaseURL string
	CORSOrigins   []string

	// Monitoring windows. The ping interval is deliberately one second
	// under a minute so a 60s cron on the device never trips the limit.
	PingMinInterval    time.Duration
	OfflineAfter       time.Duration
	NotifyCooldown     time.Duration
	ValidationTokenTTL time.Duration
	SweepInterval      time.Duration
	SweepConcurrency   int

	NegativeLookupTTL time.Duration

	CreateRateLimit      int
	CreateRateWindow     time.Duration
	RateLimitFailureMode string

	LogLevel  string
	LogFormat string

	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{AppEnv: getEnv("APP_ENV", "development")}

	var err error
	load := func(fn func() error) {
		if err == nil {
			err = fn()
		}
	}

	load(func() error { return parseString(&cfg.HTTPAddr, "HTTP_ADDR", ":8080") })
	load(func() error { return parseDuration(&cfg.HTTPReadTimeout, "HTTP_READ_TIMEOUT", 10*time.Second) })
	load(func() error { return parseDuration(&cfg.HTTPWriteTimeout, "HTTP_WRITE_TIMEOUT", 20*time.Second) })
	load(func() error { return parseDuration(&cfg.HTTPShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", 15*time.Second) })
	load(func() error { return parseInt64(&cfg.HTTPBodyLimit, "HTTP_BODY_LIMIT_BYTES", 1<<20) })

	load(func() error { return parseString(&cfg.DatabaseURL, "DATABASE_URL", "") })
	load(func() error { return parseInt(&cfg.DBMaxOpenConns, "DB_MAX_OPEN_CONNS", 10) })
	load(func() error { return parseInt(&cfg.DBMaxIdleConns, "DB_MAX_IDLE_CONNS", 5) })

	load(func() error { return parseString(&cfg.RedisAddr, "REDIS_ADDR", "") })
	load(func() error { return parseString(&cfg.RedisPassword, "REDIS_PASSWORD", "") })
	load(func() error { return parseInt(&cfg.RedisDB, "REDIS_DB", 0) })

	load(func() error { return parseString(&cfg.MailProvider, "MAIL_PROVIDER", "log") })
	load(func() error { return parseString(&cfg.MailFrom, "MAIL_FROM", "ImOK <noreply@imok.lv>") })
	load(func() error { return parseString(&cfg.SESRegion, "SES_REGION", "eu-west-1") })
	load(func() error { return parseDuration(&cfg.MailSendTimeout, "MAIL_SEND_TIMEOUT", 10*time.Second) })

	load(func() error { return parseString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL", "https://imok.lv") })
	load(func() error { return parseList(&cfg.CORSOrigins, "CORS_ORIGINS", "https://imok.lv") })

	load(func() error { return parseDuration(&cfg.PingMinInterval, "PING_MIN_INTERVAL", 59*time.Second) })
	load(func() error { return parseDuration(&cfg.OfflineAfter, "OFFLINE_AFTER", 5*time.Minute) })
	load(func() error { return parseDuration(&cfg.NotifyCooldown, "NOTIFY_COOLDOWN", time.Hour) })
	load(func() error { return parseDuration(&cfg.ValidationTokenTTL, "VALIDATION_TOKEN_TTL", 24*time.Hour) })
	load(func() error { return parseDuration(&cfg.SweepInterval, "SWEEP_INTERVAL", time.Minute) })
	load(func() error { return parseInt(&cfg.SweepConcurrency, "SWEEP_CONCURRENCY", 8) })

	load(func() error { return parseDuration(&cfg.NegativeLookupTTL, "NEGATIVE_LOOKUP_TTL", time.Minute) })

	load(func() error { return parseInt(&cfg.CreateRateLimit, "CREATE_RATE_LIMIT", 10) })
	load(func() error { return parseDuration(&cfg.CreateRateWindow, "CREATE_RATE_WINDOW", time.Minute) })
	load(func() error { return parseString(&cfg.RateLimitFailureMode, "RATE_LIMIT_FAILURE_MODE", "fail_open") })

	load(func() error { return parseString(&cfg.LogLevel, "LOG_LEVEL", "info") })
	load(func() error { return parseString(&cfg.LogFormat, "LOG_FORMAT", "json") })

	load(func() error { return parseBool(&cfg.OTELMetricsEnabled, "OTEL_METRICS_ENABLED", false) })
	load(func() error { return parseBool(&cfg.OTELTracesEnabled, "OTEL_TRACES_ENABLED", false) })
	load(func() error { return parseBool(&cfg.OTELLogsEnabled, "OTEL_LOGS_ENABLED", false) })
	load(func() error {
		return parseString(&cfg.OTELExporterOTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	})
	load(func() error { return parseBool(&cfg.OTELExporterOTLPInsecure, "OTEL_EXPORTER_OTLP_INSECURE", true) })
	load(func() error { return parseString(&cfg.OTELServiceName, "OTEL_SERVICE_NAME", "imok") })
	load(func() error { return parseString(&cfg.OTELEnvironment, "OTEL_ENVIRONMENT", cfg.AppEnv) })
	load(func() error {
		return parseDuration(&cfg.OTELMetricsExportInterval, "OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second)
	})

	if err == nil {
		err = cfg.validate()
	}
	if err != nil {
		recordConfigValidationEvent(context.Background(), cfg.AppEnv, "error", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.AppEnv, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.PingMinInterval <= 0 {
		problems = append(problems, "PING_MIN_INTERVAL must be positive")
	}
	if c.OfflineAfter <= c.PingMinInterval {
		problems = append(problems, "OFFLINE_AFTER must exceed PING_MIN_INTERVAL")
	}
	if c.NotifyCooldown <= 0 {
		problems = append(problems, "NOTIFY_COOLDOWN must be positive")
	}
	if c.ValidationTokenTTL <= 0 {
		problems = append(problems, "VALIDATION_TOKEN_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		problems = append(problems, "SWEEP_INTERVAL must be positive")
	}
	if c.SweepConcurrency <= 0 {
		problems = append(problems, "SWEEP_CONCURRENCY must be positive")
	}
	switch c.MailProvider {
	case "ses", "log":
	default:
		problems = append(problems, fmt.Sprintf("MAIL_PROVIDER %q is not one of ses, log", c.MailProvider))
	}
	switch c.RateLimitFailureMode {
	case "fail_open", "fail_closed":
	default:
		problems = append(problems, fmt.Sprintf("RATE_LIMIT_FAILURE_MODE %q is not one of fail_open, fail_closed", c.RateLimitFailureMode))
	}
	if c.MailProvider == "ses" && c.MailFrom == "" {
		problems = append(problems, "MAIL_FROM is required when MAIL_PROVIDER=ses")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func parseString(dst *string, key, fallback string) error {
	*dst = getEnv(key, fallback)
	return nil
}

func parseInt(dst *int, key string, fallback int) error {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		*dst = fallback
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = v
	return nil
}

func parseInt64(dst *int64, key string, fallback int64) error {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		*dst = fallback
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = v
	return nil
}

func parseBool(dst *bool, key string, fallback bool) error {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		*dst = fallback
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = v
	return nil
}

func parseDuration(dst *time.Duration, key string, fallback time.Duration) error {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		*dst = fallback
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = v
	return nil
}

func parseList(dst *[]string, key, fallback string) error {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	*dst = out
	return nil
}
