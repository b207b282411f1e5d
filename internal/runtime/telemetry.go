package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/mienlabs/mien-core/internal/config"
)

// telemetry bundles the process-wide trace and metric providers plus the
// handler the runtime mounts at /metrics. Shutdown flushes providers in
// reverse initialization order.
type telemetry struct {
	metricsHandler http.Handler
	shutdowns      []func(context.Context) error
}

func newTelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			semconv.ServiceInstanceID(uuid.NewString()),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	t := &telemetry{}
	if err := t.initTraces(ctx, cfg, res, logger); err != nil {
		return nil, err
	}
	t.initMeters(res, logger)
	return t, nil
}

// initTraces picks the span exporter: OTLP when an endpoint is configured,
// stdout pretty-print for local development, nothing in production without a
// collector (stdout spans would drown the structured logs).
func (t *telemetry) initTraces(ctx context.Context, cfg config.Config, res *resource.Resource, logger *slog.Logger) error {
	var (
		exporter sdktrace.SpanExporter
		err      error
		kind     string
	)
	endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint)
	switch {
	case endpoint != "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Telemetry.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		kind = "otlp"
	case cfg.Environment == "production":
		logger.Info("trace export disabled", slog.String("reason", "no otlp endpoint configured"))
		return nil
	default:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		kind = "stdout"
	}
	if err != nil {
		return fmt.Errorf("create %s trace exporter: %w", kind, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	t.shutdowns = append(t.shutdowns, tp.Shutdown)
	logger.Info("trace exporter ready", slog.String("exporter", kind))
	return nil
}

// initMeters wires the prometheus reader. If the exporter cannot register,
// the runtime keeps an in-process meter provider so instrument creation in
// the session never fails outright.
func (t *telemetry) initMeters(res *resource.Resource, logger *slog.Logger) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("prometheus exporter unavailable, metrics stay in-process",
			slog.String("error", err.Error()))
	} else {
		opts = append(opts, sdkmetric.WithReader(promExporter))
		t.metricsHandler = promhttp.Handler()
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	t.shutdowns = append(t.shutdowns, mp.Shutdown)
}

func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
