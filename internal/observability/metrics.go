package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/imoklv/imok/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	pingCounter         metric.Int64Counter
	lifecycleCounter    metric.Int64Counter
	notificationCounter metric.Int64Counter
	sweepCounter        metric.Int64Counter
	sweepDuration       metric.Float64Histogram
	repositoryOpCounter metric.Int64Counter
	rateLimitCounter    metric.Int64Counter
	rateLimitRetryCount metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("imok")
	pingCounter, err := meter.Int64Counter("device.ping.decisions")
	if err != nil {
		return nil, err
	}
	lifecycleCounter, err := meter.Int64Counter("device.lifecycle.events")
	if err != nil {
		return nil, err
	}
	notificationCounter, err := meter.Int64Counter("notification.emails")
	if err != nil {
		return nil, err
	}
	sweepCounter, err := meter.Int64Counter("sweep.runs")
	if err != nil {
		return nil, err
	}
	sweepDuration, err := meter.Float64Histogram("sweep.duration.seconds")
	if err != nil {
		return nil, err
	}
	repositoryOpCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	rateLimitCounter, err := meter.Int64Counter("http.rate_limit.decisions")
	if err != nil {
		return nil, err
	}
	rateLimitRetryCount, err := meter.Int64Counter("http.rate_limit.retry_after")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		pingCounter:         pingCounter,
		lifecycleCounter:    lifecycleCounter,
		notificationCounter: notificationCounter,
		sweepCounter:        sweepCounter,
		sweepDuration:       sweepDuration,
		repositoryOpCounter: repositoryOpCounter,
		rateLimitCounter:    rateLimitCounter,
		rateLimitRetryCount: rateLimitRetryCount,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	return m
}

func RecordPingDecision(status string) {
	m := current()
	if m == nil {
		return
	}
	m.pingCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordDeviceLifecycle(action, status string) {
	m := current()
	if m == nil {
		return
	}
	m.lifecycleCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

func RecordNotification(kind, status string) {
	m := current()
	if m == nil {
		return
	}
	m.notificationCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

func RecordSweepRun(status string) {
	m := current()
	if m == nil {
		return
	}
	m.sweepCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordSweepDuration(d time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.sweepDuration.Record(context.Background(), d.Seconds())
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
			attribute.String("mode", mode),
		),
	)
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, retryAfter time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitRetryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("reason", reason),
			attribute.Int64("retry_after_ms", retryAfter.Milliseconds()),
		),
	)
}
