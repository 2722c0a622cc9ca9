// Package analysis owns the analyze workflow: region selection, the
// Idle/Loading state machine and the assessment currently on display.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/risk"
)

var (
	// ErrBusy is returned when an operation needs Idle but a request is in flight.
	ErrBusy = errors.New("analysis already in progress")
	// ErrUnknownRegion is returned when selecting a region the catalog does not list.
	ErrUnknownRegion = errors.New("region not in catalog")
)

const defaultFailureReason = "Analysis failed"

// Phase is the controller's state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Service is the part of the risk service the controller drives.
type Service interface {
	Analyze(ctx context.Context, region risk.Region) (*risk.SystemState, error)
	CurrentState(ctx context.Context) (*risk.SystemState, error)
}

// Catalog is the read side of the region catalog.
type Catalog interface {
	Contains(region risk.Region) bool
	Default() risk.Region
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	Phase          Phase             `json:"phase"`
	SelectedRegion risk.Region       `json:"selected_region"`
	State          *risk.SystemState `json:"state"`
	Error          string            `json:"error,omitempty"`
	LastUpdated    time.Time         `json:"last_updated,omitzero"`
}

// Loading reports whether a request is in flight.
func (s Snapshot) Loading() bool {
	return s.Phase == PhaseLoading
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Controller) { c.logger = logging.OrNop(logger) }
}

// WithMetrics counts rejected aggregations.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(c *Controller) { c.metrics = metrics }
}

// WithClock overrides the time source used for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller is the AnalysisController for one session. Only one analyze
// request may be in flight; overlapping calls fail with ErrBusy without
// touching the service or the state.
type Controller struct {
	service Service
	catalog Catalog
	logger  logging.Logger
	metrics *observability.MetricsCollector
	now     func() time.Time

	slot *semaphore.Weighted

	mu           sync.Mutex
	phase        Phase
	selected     risk.Region
	state        *risk.SystemState
	errMsg       string
	lastUpdated  time.Time
	generation   uint64
	bootstrapped bool
	observers    []func(Snapshot)
}

// New builds an Idle controller with no assessment. Until a region is
// selected the catalog's default is used.
func New(service Service, catalog Catalog, opts ...Option) *Controller {
	c := &Controller{
		service: service,
		catalog: catalog,
		logger:  logging.Nop(),
		now:     time.Now,
		slot:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers an observer called with a fresh snapshot after every
// transition. Observers run synchronously on the goroutine that caused the
// transition and must not call back into the controller's mutating methods.
func (c *Controller) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// SelectRegion records the region the next Analyze will use. It never fetches.
func (c *Controller) SelectRegion(region risk.Region) error {
	c.mu.Lock()
	if c.phase == PhaseLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.catalog != nil && !c.catalog.Contains(region) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	c.selected = region
	c.mu.Unlock()

	c.notify()
	return nil
}

// Analyze requests a fresh assessment of the selected region. On success the
// held state is replaced and the error cleared; on failure the previous state
// is kept and the error set to the failure reason. The service error is
// returned as well.
func (c *Controller) Analyze(ctx context.Context) error {
	if !c.slot.TryAcquire(1) {
		return ErrBusy
	}
	defer c.slot.Release(1)

	c.mu.Lock()
	c.phase = PhaseLoading
	c.errMsg = ""
	c.generation++
	region := c.selectedLocked()
	c.mu.Unlock()
	c.notify()

	logger := logging.FromContext(ctx, c.logger)
	logger.Info("analyzing %s", region)

	state, err := c.service.Analyze(ctx, region)

	c.mu.Lock()
	c.phase = PhaseIdle
	if err != nil {
		c.errMsg = cwerrors.Reason(err)
		if c.errMsg == "" {
			c.errMsg = defaultFailureReason
		}
	} else {
		c.state = state
		c.lastUpdated = c.now()
	}
	c.mu.Unlock()

	if err != nil {
		c.logFailure(ctx, logger, "analysis of "+string(region), err)
	}
	c.notify()
	return err
}

// Bootstrap runs once per controller. It probes for an assessment the service
// already holds and, if there is one, shows it without entering Loading. An
// absent assessment leaves the controller empty with no error; a failed probe
// is logged and returned but never shown as an error.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.bootstrapped {
		c.mu.Unlock()
		return nil
	}
	c.bootstrapped = true
	generation := c.generation
	c.mu.Unlock()

	logger := logging.FromContext(ctx, c.logger)

	state, err := c.service.CurrentState(ctx)
	if err != nil {
		c.logFailure(ctx, logger, "current state probe", err)
		return err
	}
	if state == nil {
		logger.Debug("no assessment held by risk service")
		return nil
	}

	c.mu.Lock()
	// An analyze started meanwhile owns the display.
	if c.generation != generation || c.state != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = state
	c.lastUpdated = c.now()
	c.mu.Unlock()

	logger.Info("seeded with existing assessment of %s", state.Region)
	c.notify()
	return nil
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns a copy of the held assessment, or nil.
func (c *Controller) State() *risk.SystemState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// CurrentRegion is the region the displayed assessment is about, or the
// selection when nothing has been assessed yet.
func (c *Controller) CurrentRegion() risk.Region {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != nil {
		return c.state.Region
	}
	return c.selectedLocked()
}

func (c *Controller) selectedLocked() risk.Region {
	if c.selected == "" && c.catalog != nil {
		return c.catalog.Default()
	}
	return c.selected
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:          c.phase,
		SelectedRegion: c.selectedLocked(),
		State:          c.state.Clone(),
		Error:          c.errMsg,
		LastUpdated:    c.lastUpdated,
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	observers := make([]func(Snapshot), len(c.observers))
	copy(observers, c.observers)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// logFailure keeps contract violations apart from ordinary failures.
func (c *Controller) logFailure(ctx context.Context, logger logging.Logger, what string, err error) {
	if violation, ok := cwerrors.AsInvalidAggregation(err); ok {
		c.metrics.RecordAggregationRejection(ctx, violation.Field)
		logger.Error("%s: risk service violated the aggregation contract (%s): %s", what, violation.Field, violation.Reason)
		return
	}
	if cwerrors.IsServiceUnavailable(err) {
		logger.Warn("%s: service unavailable: %v", what, err)
		return
	}
	logger.Warn("%s failed (%s): %v", what, cwerrors.Classify(err), err)
}
