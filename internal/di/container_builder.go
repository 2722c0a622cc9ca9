package di

import (
	"fmt"
	"io"
	"os"

	"chainwatch/internal/catalog"
	"chainwatch/internal/config"
	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/risk"
	"chainwatch/internal/riskclient"
)

// Option customises container construction.
type Option func(*containerBuilder)

// WithLogOutput redirects structured logs, stderr by default.
func WithLogOutput(w io.Writer) Option {
	return func(b *containerBuilder) { b.logOutput = w }
}

type containerBuilder struct {
	config    config.Config
	logOutput io.Writer
}

// BuildContainer builds the dependency injection container with the given configuration.
// Network work is deferred until Warmup is called.
func BuildContainer(cfg config.Config, opts ...Option) (*Container, error) {
	builder := &containerBuilder{config: cfg, logOutput: os.Stderr}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.Build()
}

func (b *containerBuilder) Build() (*Container, error) {
	obs := b.config.Observability
	logger := observability.NewLogger(observability.LogConfig{
		Level:  obs.Logging.Level,
		Format: obs.Logging.Format,
		Output: b.logOutput,
	})
	log := logging.Component(logger, "di")

	metrics, err := observability.NewMetricsCollector(obs.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	var breakerMetrics *observability.BreakerMetrics
	if registry := metrics.Registry(); registry != nil {
		breakerMetrics = observability.NewBreakerMetrics(registry)
	}

	tracer, err := observability.NewTracerProvider(obs.Tracing)
	if err != nil {
		log.Warn("Tracing disabled: %v", err)
		tracer = observability.NewNoopTracerProvider()
	}

	service := b.config.Service
	client := riskclient.New(riskclient.Config{
		BaseURL:          service.BaseURL,
		Timeout:          service.Timeout,
		MaxResponseBytes: service.MaxResponseBytes,
		Breaker: cwerrors.CircuitBreakerConfig{
			FailureThreshold: service.Breaker.FailureThreshold,
			SuccessThreshold: service.Breaker.SuccessThreshold,
			Timeout:          service.Breaker.Timeout,
			Logger:           logging.Component(logger, "breaker"),
		},
	},
		riskclient.WithLogger(logging.Component(logger, "riskclient")),
		riskclient.WithTracer(tracer),
		riskclient.WithMetrics(metrics),
		riskclient.WithBreakerMetrics(breakerMetrics),
	)

	regions := make([]risk.Region, 0, len(b.config.Regions.Defaults))
	for _, name := range b.config.Regions.Defaults {
		regions = append(regions, risk.Region(name))
	}
	regionCatalog := catalog.New(client,
		catalog.WithDefaults(regions),
		catalog.WithLogger(logging.Component(logger, "catalog")),
		catalog.WithMetrics(metrics),
	)

	log.Debug("Container built for %s", client.BaseURL())

	return &Container{
		Config:         b.config,
		Logger:         logger,
		Metrics:        metrics,
		BreakerMetrics: breakerMetrics,
		Tracer:         tracer,
		Client:         client,
		Catalog:        regionCatalog,
		log:            log,
	}, nil
}
