package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/reviewgate/backend"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount      metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	FeedbackSubmitted metric.Int64Counter
	StoreErrors       metric.Int64Counter
	RecordsDeleted    metric.Int64Counter
	ProbeRuns         metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing, metrics export and runtime metrics
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		_ = tracerProvider.Shutdown(ctx)
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics against the global meter provider
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	feedbackSubmitted, err := meter.Int64Counter(
		"feedback.submitted.count",
		metric.WithDescription("Feedback records dispatched to the store, by sentiment and outcome"),
	)
	if err != nil {
		return nil, err
	}

	storeErrors, err := meter.Int64Counter(
		"store.error.count",
		metric.WithDescription("Document store failures by operation and code"),
	)
	if err != nil {
		return nil, err
	}

	recordsDeleted, err := meter.Int64Counter(
		"feedback.deleted.count",
		metric.WithDescription("Feedback records removed by admins"),
	)
	if err != nil {
		return nil, err
	}

	probeRuns, err := meter.Int64Counter(
		"diagnostics.probe.count",
		metric.WithDescription("Permission probe runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:      requestCount,
		RequestDuration:   requestDuration,
		FeedbackSubmitted: feedbackSubmitted,
		StoreErrors:       storeErrors,
		RecordsDeleted:    recordsDeleted,
		ProbeRuns:         probeRuns,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records a metric with attributes
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordFeedbackSubmitted counts one dispatched feedback record
func RecordFeedbackSubmitted(ctx context.Context, metrics *Metrics, sentiment string, ok bool) {
	if metrics == nil {
		return
	}
	metrics.FeedbackSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("feedback.sentiment", sentiment),
		attribute.Bool("feedback.stored", ok),
	))
}

// RecordStoreError counts one classified store failure
func RecordStoreError(ctx context.Context, metrics *Metrics, operation, code string) {
	if metrics == nil {
		return
	}
	metrics.StoreErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store.operation", operation),
		attribute.String("store.code", code),
	))
}

// RecordRecordsDeleted counts records removed by an admin action
func RecordRecordsDeleted(ctx context.Context, metrics *Metrics, mode string, count int) {
	if metrics == nil || count <= 0 {
		return
	}
	metrics.RecordsDeleted.Add(ctx, int64(count), metric.WithAttributes(attribute.String("delete.mode", mode)))
}

// RecordProbeRun counts one diagnostic probe run
func RecordProbeRun(ctx context.Context, metrics *Metrics, category string, ok bool) {
	if metrics == nil {
		return
	}
	metrics.ProbeRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("probe.category", category),
		attribute.Bool("probe.ok", ok),
	))
}
