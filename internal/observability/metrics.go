package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pendek-app/pendek-auth/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	authLoginCounter       metric.Int64Counter
	authRefreshCounter     metric.Int64Counter
	authLogoutCounter      metric.Int64Counter
	authRevokeCounter      metric.Int64Counter
	tokenValidationCounter metric.Int64Counter
	repositoryOpCounter    metric.Int64Counter
	sweepRunCounter        metric.Int64Counter
	sweepDeletedCounter    metric.Int64Counter
	alertCounter           metric.Int64Counter
	rateLimitCounter       metric.Int64Counter
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
			attribute.String("deployment.environment", cfg.AppEnv),
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

	meter := mp.Meter("pendek-auth")
	m := &AppMetrics{}
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"auth.login.attempts", &m.authLoginCounter},
		{"auth.refresh.attempts", &m.authRefreshCounter},
		{"auth.logout.attempts", &m.authLogoutCounter},
		{"auth.revoke.attempts", &m.authRevokeCounter},
		{"auth.token.validations", &m.tokenValidationCounter},
		{"repository.operations", &m.repositoryOpCounter},
		{"sessions.sweep.runs", &m.sweepRunCounter},
		{"sessions.sweep.deleted", &m.sweepDeletedCounter},
		{"monitoring.alerts", &m.alertCounter},
		{"http.rate_limit.decisions", &m.rateLimitCounter},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(provider, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

func RecordAuthRefresh(status string) {
	m := current()
	if m == nil {
		return
	}
	m.authRefreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthRevoke(status string) {
	m := current()
	if m == nil {
		return
	}
	m.authRevokeCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		),
	)
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordReaperRun(outcome string, deleted int64) {
	m := current()
	if m == nil {
		return
	}
	m.sweepRunCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if deleted > 0 {
		m.sweepDeletedCounter.Add(context.Background(), deleted)
	}
}

func RecordAlert(severity string) {
	m := current()
	if m == nil {
		return
	}
	m.alertCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("severity", severity)))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
		),
	)
}
