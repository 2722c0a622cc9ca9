// Package catalog holds the ordered set of regions a user can analyze.
package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/risk"
)

// Source says where the regions currently served came from.
type Source string

const (
	SourceRemote    Source = "remote"
	SourceLastKnown Source = "last_known"
	SourceBuiltin   Source = "builtin"
)

// RegionSource fetches the remote region list.
type RegionSource interface {
	ListRegions(ctx context.Context) ([]risk.Region, map[risk.Region]risk.RegionDetail, error)
}

// DefaultRegions is served until the remote list has been fetched once.
var DefaultRegions = []risk.Region{"Shanghai", "Rotterdam", "Los Angeles"}

var builtinDetails = map[risk.Region]risk.RegionDetail{
	"Shanghai": {
		Latitude: 31.2304, Longitude: 121.4737, Port: "Shanghai Port",
		BoundingBox: [2][2]float64{{30.9, 121.2}, {31.5, 122.0}},
	},
	"Rotterdam": {
		Latitude: 51.9225, Longitude: 4.4792, Port: "Port of Rotterdam",
		BoundingBox: [2][2]float64{{51.7, 4.2}, {52.1, 4.8}},
	},
	"Los Angeles": {
		Latitude: 33.7405, Longitude: -118.2760, Port: "Port of Los Angeles",
		BoundingBox: [2][2]float64{{33.5, -118.5}, {33.9, -118.0}},
	},
}

var errEmptyList = errors.New("risk service returned no regions")

// Option customises a Catalog.
type Option func(*Catalog)

// WithDefaults replaces the built-in region list. An empty list is ignored.
func WithDefaults(regions []risk.Region) Option {
	return func(c *Catalog) {
		if unique := dedupe(regions); len(unique) > 0 {
			c.defaults = unique
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Catalog) { c.logger = logging.OrNop(logger) }
}

// WithMetrics counts fallback loads.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(c *Catalog) { c.metrics = metrics }
}

// Catalog is the RegionCatalog. The list it serves is never empty: before a
// successful fetch, and after failed ones, it falls back to the last list it
// fetched or to the built-in defaults.
type Catalog struct {
	source   RegionSource
	defaults []risk.Region
	logger   logging.Logger
	metrics  *observability.MetricsCollector

	mu        sync.RWMutex
	regions   []risk.Region
	details   map[risk.Region]risk.RegionDetail
	origin    Source
	lastKnown []risk.Region
	attempted bool
	loadErr   error
}

// New builds a catalog serving the defaults until Load is called.
func New(source RegionSource, opts ...Option) *Catalog {
	c := &Catalog{
		source:   source,
		defaults: append([]risk.Region(nil), DefaultRegions...),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.regions = append([]risk.Region(nil), c.defaults...)
	c.details = builtinDetails
	c.origin = SourceBuiltin
	return c
}

// Load fetches the remote list the first time it is called; later calls
// return the outcome of that first attempt without fetching again.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.RLock()
	attempted, loadErr := c.attempted, c.loadErr
	c.mu.RUnlock()
	if attempted {
		return loadErr
	}
	return c.Reload(ctx)
}

// Reload fetches the remote list unconditionally. On failure the catalog keeps
// serving a fallback list and a *errors.ServiceUnavailable is returned.
func (c *Catalog) Reload(ctx context.Context) error {
	var (
		regions []risk.Region
		details map[risk.Region]risk.RegionDetail
		err     error
	)
	if c.source == nil {
		err = &cwerrors.ServiceUnavailable{Operation: "list regions", Err: errors.New("no region source configured")}
	} else {
		regions, details, err = c.source.ListRegions(ctx)
	}

	unique := dedupe(regions)
	if err == nil && len(unique) == 0 {
		err = &cwerrors.ServiceUnavailable{Operation: "list regions", Err: errEmptyList}
	}
	if err != nil && !cwerrors.IsServiceUnavailable(err) {
		err = &cwerrors.ServiceUnavailable{Operation: "list regions", Err: err}
	}

	c.mu.Lock()
	c.attempted = true
	c.loadErr = err
	if err == nil {
		c.regions = unique
		c.lastKnown = unique
		c.details = mergeDetails(details)
		c.origin = SourceRemote
		c.mu.Unlock()
		c.logger.Info("loaded %d regions from risk service", len(unique))
		return nil
	}

	if len(c.lastKnown) > 0 {
		c.regions = c.lastKnown
		c.origin = SourceLastKnown
	} else {
		c.regions = c.defaults
		c.details = builtinDetails
		c.origin = SourceBuiltin
	}
	origin, count := c.origin, len(c.regions)
	c.mu.Unlock()

	c.logger.Warn("region list unavailable, serving %d %s regions: %v", count, origin, err)
	c.metrics.RecordCatalogFallback(ctx, string(origin))
	return err
}

// Regions returns the ordered region list.
func (c *Catalog) Regions() []risk.Region {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]risk.Region(nil), c.regions...)
}

// Contains reports whether r is currently selectable.
func (c *Catalog) Contains(r risk.Region) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, region := range c.regions {
		if region == r {
			return true
		}
	}
	return false
}

// Default is the region selected when a session starts: the first entry.
func (c *Catalog) Default() risk.Region {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.regions[0]
}

// Detail returns geographic metadata for r, if known.
func (c *Catalog) Detail(r risk.Region) (risk.RegionDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	detail, ok := c.details[r]
	return detail, ok
}

// Source reports where the served list came from.
func (c *Catalog) Source() Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.origin
}

func dedupe(regions []risk.Region) []risk.Region {
	seen := make(map[risk.Region]struct{}, len(regions))
	out := make([]risk.Region, 0, len(regions))
	for _, region := range regions {
		region = risk.Region(strings.TrimSpace(string(region)))
		if region == "" {
			continue
		}
		if _, dup := seen[region]; dup {
			continue
		}
		seen[region] = struct{}{}
		out = append(out, region)
	}
	return out
}

// mergeDetails prefers remote metadata and fills gaps from the built-in table.
func mergeDetails(remote map[risk.Region]risk.RegionDetail) map[risk.Region]risk.RegionDetail {
	merged := make(map[risk.Region]risk.RegionDetail, len(builtinDetails)+len(remote))
	for region, detail := range builtinDetails {
		merged[region] = detail
	}
	for region, detail := range remote {
		merged[region] = detail
	}
	return merged
}
