package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for chainwatch
type MetricsCollector struct {
	meter    metric.Meter
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	// Analysis metrics
	analyzeRequests       metric.Int64Counter
	analyzeLatency        metric.Float64Histogram
	aggregationRejections metric.Int64Counter

	// Chat metrics
	chatRequests metric.Int64Counter
	chatLatency  metric.Float64Histogram

	// Catalog metrics
	catalogFallbacks metric.Int64Counter

	// Session metrics
	sessionsActive metric.Int64UpDownCounter

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector. Every collector owns a
// dedicated Prometheus registry so several can coexist in one process.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter("chainwatch")

	analyzeRequests, err := meter.Int64Counter(
		"chainwatch.analyze.requests.total",
		metric.WithDescription("Total number of analyze requests sent to the risk service"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze_requests counter: %w", err)
	}

	analyzeLatency, err := meter.Float64Histogram(
		"chainwatch.analyze.latency",
		metric.WithDescription("Analyze request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze_latency histogram: %w", err)
	}

	aggregationRejections, err := meter.Int64Counter(
		"chainwatch.aggregation.rejections.total",
		metric.WithDescription("Aggregations rejected by client-side validation"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation_rejections counter: %w", err)
	}

	chatRequests, err := meter.Int64Counter(
		"chainwatch.chat.requests.total",
		metric.WithDescription("Total number of chat requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_requests counter: %w", err)
	}

	chatLatency, err := meter.Float64Histogram(
		"chainwatch.chat.latency",
		metric.WithDescription("Chat request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat_latency histogram: %w", err)
	}

	catalogFallbacks, err := meter.Int64Counter(
		"chainwatch.catalog.fallbacks.total",
		metric.WithDescription("Region catalog loads served from a fallback list"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog_fallbacks counter: %w", err)
	}

	sessionsActive, err := meter.Int64UpDownCounter(
		"chainwatch.sessions.active",
		metric.WithDescription("Number of active dashboard sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions_active gauge: %w", err)
	}

	collector := &MetricsCollector{
		meter:                 meter,
		registry:              registry,
		provider:              provider,
		analyzeRequests:       analyzeRequests,
		analyzeLatency:        analyzeLatency,
		aggregationRejections: aggregationRejections,
		chatRequests:          chatRequests,
		chatLatency:           chatLatency,
		catalogFallbacks:      catalogFallbacks,
		sessionsActive:        sessionsActive,
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// Registry exposes the collector's Prometheus registry, nil when disabled.
func (m *MetricsCollector) Registry() *promclient.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartPrometheusServer starts a standalone metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	if m.prometheusServer != nil {
		return fmt.Errorf("prometheus server already listening on %s", m.prometheusServer.Addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = m.prometheusServer.ListenAndServe()
	}()

	return nil
}

// Shutdown stops the metrics server and flushes the meter provider
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if m.prometheusServer != nil {
		if err := m.prometheusServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// RecordAnalyze records one analyze request against the risk service
func (m *MetricsCollector) RecordAnalyze(ctx context.Context, region string, status string, latency time.Duration) {
	if m == nil || m.analyzeRequests == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("region", region),
		attribute.String("status", status),
	)
	m.analyzeRequests.Add(ctx, 1, attrs)
	m.analyzeLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordAggregationRejection counts a payload rejected by validation, keyed by offending field
func (m *MetricsCollector) RecordAggregationRejection(ctx context.Context, field string) {
	if m == nil || m.aggregationRejections == nil {
		return
	}
	m.aggregationRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("field", field)))
}

// RecordChat records one chat request
func (m *MetricsCollector) RecordChat(ctx context.Context, status string, latency time.Duration) {
	if m == nil || m.chatRequests == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))
	m.chatRequests.Add(ctx, 1, attrs)
	m.chatLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordCatalogFallback counts a catalog load served from last_known or builtin regions
func (m *MetricsCollector) RecordCatalogFallback(ctx context.Context, source string) {
	if m == nil || m.catalogFallbacks == nil {
		return
	}
	m.catalogFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// IncrementActiveSessions increments active session count
func (m *MetricsCollector) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// DecrementActiveSessions decrements active session count
func (m *MetricsCollector) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}
