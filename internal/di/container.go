package di

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"chainwatch/internal/analysis"
	"chainwatch/internal/catalog"
	"chainwatch/internal/chat"
	"chainwatch/internal/config"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/riskclient"
)

// Container holds all application dependencies
type Container struct {
	Config         config.Config
	Logger         *observability.Logger
	Metrics        *observability.MetricsCollector
	BreakerMetrics *observability.BreakerMetrics
	Tracer         *observability.TracerProvider
	Client         *riskclient.Client
	Catalog        *catalog.Catalog

	log logging.Logger
}

// NewController builds an analysis controller bound to the shared client and catalog.
func (c *Container) NewController() *analysis.Controller {
	return analysis.New(c.Client, c.Catalog,
		analysis.WithLogger(logging.Component(c.Logger, "analysis")),
		analysis.WithMetrics(c.Metrics),
	)
}

// NewChatSession builds a chat session that reads the region under discussion
// from source.
func (c *Container) NewChatSession(source chat.ContextSource) *chat.Session {
	return chat.New(c.Client, source,
		chat.WithLogger(logging.Component(c.Logger, "chat")),
		chat.WithFallbackMessage(c.Config.Chat.FallbackMessage),
	)
}

// Warmup loads the region catalog and probes for an existing result in
// parallel. Both degrade on failure; only cancellation is reported.
func (c *Container) Warmup(ctx context.Context, controller *analysis.Controller) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.Catalog.Load(gctx); err != nil {
			c.log.Warn("Region catalog unavailable, serving %s regions: %v", c.Catalog.Source(), err)
		}
		return gctx.Err()
	})
	if controller != nil {
		g.Go(func() error {
			if err := controller.Bootstrap(gctx); err != nil {
				c.log.Warn("No existing analysis loaded: %v", err)
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

// Cleanup gracefully shuts down all resources
func (c *Container) Cleanup(ctx context.Context) error {
	var errs []error
	if err := c.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	if err := c.Metrics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
	}
	return errors.Join(errs...)
}
