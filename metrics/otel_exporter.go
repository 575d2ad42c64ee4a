package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector
	gatherer      promclient.Gatherer
	inFlight      func() int64

	// OTel meters and instruments
	meter              metric.Meter
	queueJobsGauge     metric.Int64ObservableGauge
	activeWorkersGauge metric.Int64ObservableGauge
	inFlightGauge      metric.Int64ObservableGauge
	eventsCounter      metric.Int64Counter
	attemptsCounter    metric.Int64Counter
	attemptDuration    metric.Float64Histogram
}

// ExporterOption customizes an OTelExporter
type ExporterOption func(*OTelExporter)

// WithRegistry exports into reg instead of the default Prometheus registry
func WithRegistry(reg *promclient.Registry) ExporterOption {
	return func(oe *OTelExporter) {
		oe.gatherer = reg
	}
}

// WithInFlight reports the jobs this process is running, read from count on every scrape
func WithInFlight(count func() int64) ExporterOption {
	return func(oe *OTelExporter) {
		oe.inFlight = count
	}
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
// collector may be nil for processes that only count events and attempts
func NewOTelExporter(collector Collector, opts ...ExporterOption) (*OTelExporter, error) {
	oe := &OTelExporter{
		collector: collector,
		gatherer:  promclient.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(oe)
	}

	var promOpts []prometheus.Option
	if reg, ok := oe.gatherer.(*promclient.Registry); ok {
		promOpts = append(promOpts, prometheus.WithRegisterer(reg))
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	oe.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(oe.meterProvider)

	oe.meter = oe.meterProvider.Meter(
		"webhook-relay",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.eventsCounter, err = oe.meter.Int64Counter(
		"webhook.events.received",
		metric.WithDescription("Number of ingested webhook events by final status"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return fmt.Errorf("creating events counter: %w", err)
	}

	oe.attemptsCounter, err = oe.meter.Int64Counter(
		"webhook.delivery.attempts",
		metric.WithDescription("Number of finished delivery attempts by channel type and status"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return fmt.Errorf("creating attempts counter: %w", err)
	}

	oe.attemptDuration, err = oe.meter.Float64Histogram(
		"webhook.delivery.attempt.duration",
		metric.WithDescription("Duration of delivery attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating attempt duration histogram: %w", err)
	}

	if oe.inFlight != nil {
		oe.inFlightGauge, err = oe.meter.Int64ObservableGauge(
			"webhook.jobs.in_flight",
			metric.WithDescription("Number of delivery jobs this process is running"),
			metric.WithUnit("{jobs}"),
			metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
				observer.Observe(oe.inFlight())
				return nil
			}),
		)
		if err != nil {
			return fmt.Errorf("creating in-flight jobs gauge: %w", err)
		}
	}

	if oe.collector == nil {
		return nil
	}

	// Queue jobs gauge (per state)
	oe.queueJobsGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.queue.jobs",
		metric.WithDescription("Number of delivery jobs in the queue per state"),
		metric.WithUnit("{jobs}"),
		metric.WithInt64Callback(oe.observeQueueJobs),
	)
	if err != nil {
		return fmt.Errorf("creating queue jobs gauge: %w", err)
	}

	// Active workers gauge (per queue)
	oe.activeWorkersGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.workers.active",
		metric.WithDescription("Number of active workers per queue"),
		metric.WithUnit("{workers}"),
		metric.WithInt64Callback(oe.observeActiveWorkers),
	)
	if err != nil {
		return fmt.Errorf("creating active workers gauge: %w", err)
	}

	return nil
}

// RecordEvent counts an ingested event by its final status
func (oe *OTelExporter) RecordEvent(ctx context.Context, status string) {
	oe.eventsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.status", status),
	))
}

// RecordAttempt counts a finished delivery attempt and its duration
func (oe *OTelExporter) RecordAttempt(ctx context.Context, channelType, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("channel.type", channelType),
		attribute.String("attempt.status", status),
	)
	oe.attemptsCounter.Add(ctx, 1, attrs)
	oe.attemptDuration.Record(ctx, duration.Seconds(), attrs)
}

// observeQueueJobs is a callback that reports jobs per queue state
func (oe *OTelExporter) observeQueueJobs(ctx context.Context, observer metric.Int64Observer) error {
	stats, err := oe.collector.GetQueueStats(ctx)
	if err != nil {
		return err
	}

	for state, count := range map[string]int64{
		"waiting":   stats.Waiting,
		"active":    stats.Active,
		"delayed":   stats.Delayed,
		"completed": stats.Completed,
		"failed":    stats.Failed,
	} {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("queue.state", state),
		))
	}

	return nil
}

// observeActiveWorkers is a callback that reports active worker counts
func (oe *OTelExporter) observeActiveWorkers(ctx context.Context, observer metric.Int64Observer) error {
	workers, err := oe.collector.GetActiveWorkers(ctx)
	if err != nil {
		return err
	}

	for name, workersList := range workers {
		observer.Observe(int64(len(workersList)), metric.WithAttributes(
			attribute.String("queue.name", name),
		))
	}

	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.HandlerFor(oe.gatherer, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
