package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/risk"
)

type staticCatalog []risk.Region

func (c staticCatalog) Contains(region risk.Region) bool {
	for _, r := range c {
		if r == region {
			return true
		}
	}
	return false
}

func (c staticCatalog) Default() risk.Region { return c[0] }

var testCatalog = staticCatalog{"Shanghai", "Rotterdam", "Los Angeles"}

type analyzeResult struct {
	state *risk.SystemState
	err   error
}

type fakeService struct {
	analyzeCalls atomic.Int32
	probeCalls   atomic.Int32

	mu        sync.Mutex
	regions   []risk.Region
	results   []analyzeResult
	started   chan struct{}
	release   chan struct{}
	probe     *risk.SystemState
	probeErr  error
	probeGate chan struct{}
}

func (f *fakeService) Analyze(ctx context.Context, region risk.Region) (*risk.SystemState, error) {
	n := int(f.analyzeCalls.Add(1)) - 1
	f.mu.Lock()
	f.regions = append(f.regions, region)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if n < len(f.results) {
		return f.results[n].state, f.results[n].err
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeService) CurrentState(ctx context.Context) (*risk.SystemState, error) {
	f.probeCalls.Add(1)
	if f.probeGate != nil {
		<-f.probeGate
	}
	return f.probe, f.probeErr
}

func assessment(region risk.Region, score float64) *risk.SystemState {
	return &risk.SystemState{
		Region:    region,
		Timestamp: "2025-03-01T08:00:00",
		AggregatedRisk: risk.AggregatedRisk{
			RiskScore: score,
			RiskLevel: risk.LevelMedium,
			Breakdown: map[risk.FactorKind]risk.BreakdownEntry{
				risk.FactorNews: {Weight: 1, Severity: int(score), Contribution: score},
			},
		},
	}
}

func TestInitialSnapshot(t *testing.T) {
	c := New(&fakeService{}, testCatalog)
	snapshot := c.Snapshot()

	assert.Equal(t, PhaseIdle, snapshot.Phase)
	assert.Equal(t, risk.Region("Shanghai"), snapshot.SelectedRegion)
	assert.Nil(t, snapshot.State)
	assert.Empty(t, snapshot.Error)
}

func TestSnapshotJSONOmitsUnsetTimestamp(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	service := &fakeService{results: []analyzeResult{{state: assessment("Shanghai", 3)}}}
	c := New(service, testCatalog, WithClock(func() time.Time { return fixed }))

	before, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(before), "last_updated")
	assert.Contains(t, string(before), `"phase":"idle"`)

	require.NoError(t, c.Analyze(context.Background()))
	after, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(after), `"last_updated":"2025-03-01T09:00:00Z"`)
}

func TestSelectRegion(t *testing.T) {
	service := &fakeService{}
	c := New(service, testCatalog)

	require.NoError(t, c.SelectRegion("Rotterdam"))
	assert.Equal(t, risk.Region("Rotterdam"), c.Snapshot().SelectedRegion)
	assert.Zero(t, service.analyzeCalls.Load())

	err := c.SelectRegion("Atlantis")
	assert.ErrorIs(t, err, ErrUnknownRegion)
	assert.Equal(t, risk.Region("Rotterdam"), c.Snapshot().SelectedRegion)
}

func TestObserverMayRegisterDuringNotification(t *testing.T) {
	c := New(&fakeService{}, testCatalog)
	var first, second int
	c.OnChange(func(Snapshot) {
		first++
		if first == 1 {
			c.OnChange(func(Snapshot) { second++ })
		}
	})

	require.NoError(t, c.SelectRegion("Rotterdam"))
	require.NoError(t, c.SelectRegion("Los Angeles"))
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
}

func TestAnalyzeSuccessReplacesStateAndClearsError(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	service := &fakeService{results: []analyzeResult{
		{err: &cwerrors.AnalysisFailed{Reason: "timeout"}},
		{state: assessment("Rotterdam", 3)},
	}}
	c := New(service, testCatalog, WithClock(func() time.Time { return fixed }))
	require.NoError(t, c.SelectRegion("Rotterdam"))

	require.Error(t, c.Analyze(context.Background()))
	assert.Equal(t, "timeout", c.Snapshot().Error)

	require.NoError(t, c.Analyze(context.Background()))
	snapshot := c.Snapshot()
	assert.Equal(t, PhaseIdle, snapshot.Phase)
	assert.Empty(t, snapshot.Error)
	require.NotNil(t, snapshot.State)
	assert.Equal(t, 3.0, snapshot.State.AggregatedRisk.RiskScore)
	assert.Equal(t, fixed, snapshot.LastUpdated)
	assert.Equal(t, []risk.Region{"Rotterdam", "Rotterdam"}, service.regions)
}

func TestAnalyzeWhileLoadingIsRejected(t *testing.T) {
	service := &fakeService{
		results: []analyzeResult{{state: assessment("Shanghai", 2)}},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := New(service, testCatalog)

	var phases []Phase
	var phasesMu sync.Mutex
	c.OnChange(func(s Snapshot) {
		phasesMu.Lock()
		phases = append(phases, s.Phase)
		phasesMu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- c.Analyze(context.Background()) }()
	<-service.started

	before := c.Snapshot()
	assert.Equal(t, PhaseLoading, before.Phase)

	assert.ErrorIs(t, c.Analyze(context.Background()), ErrBusy)
	assert.ErrorIs(t, c.SelectRegion("Rotterdam"), ErrBusy)
	assert.Equal(t, int32(1), service.analyzeCalls.Load())
	assert.Equal(t, before, c.Snapshot())

	close(service.release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), service.analyzeCalls.Load())
	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)

	phasesMu.Lock()
	defer phasesMu.Unlock()
	assert.Equal(t, []Phase{PhaseLoading, PhaseIdle}, phases)
}

func TestAnalyzeFailureKeepsPreviousState(t *testing.T) {
	service := &fakeService{results: []analyzeResult{
		{state: assessment("Shanghai", 2)},
		{err: &cwerrors.AnalysisFailed{Region: "Shanghai", Reason: "Invalid region: Shanghai"}},
	}}
	c := New(service, testCatalog)

	require.NoError(t, c.Analyze(context.Background()))
	previous := c.State()

	err := c.Analyze(context.Background())
	require.Error(t, err)
	assert.True(t, cwerrors.IsAnalysisFailed(err))

	snapshot := c.Snapshot()
	assert.Equal(t, PhaseIdle, snapshot.Phase)
	assert.Equal(t, previous, snapshot.State)
	assert.Equal(t, "Invalid region: Shanghai", snapshot.Error)
}

func TestAnalyzeClearsErrorWhileLoading(t *testing.T) {
	service := &fakeService{
		results: []analyzeResult{{err: errors.New("first")}, {state: assessment("Shanghai", 2)}},
		started: make(chan struct{}, 1),
		release: make(chan struct{}, 2),
	}
	c := New(service, testCatalog)

	service.release <- struct{}{}
	require.Error(t, c.Analyze(context.Background()))
	<-service.started
	require.NotEmpty(t, c.Snapshot().Error)

	done := make(chan error, 1)
	go func() { done <- c.Analyze(context.Background()) }()
	<-service.started
	assert.Empty(t, c.Snapshot().Error)
	service.release <- struct{}{}
	require.NoError(t, <-done)
}

func TestInvalidAggregationSurfacesAsAnalysisFailure(t *testing.T) {
	violation := &cwerrors.InvalidAggregation{Field: "risk_score", Reason: "3.4 != sum of contributions 3"}
	service := &fakeService{results: []analyzeResult{{err: &cwerrors.AnalysisFailed{
		Region: "Rotterdam", Reason: violation.Error(), Err: violation,
	}}}}
	c := New(service, testCatalog)

	err := c.Analyze(context.Background())
	got, ok := cwerrors.AsInvalidAggregation(err)
	require.True(t, ok)
	assert.Equal(t, violation, got)
	assert.Equal(t, violation.Error(), c.Snapshot().Error)
	assert.Nil(t, c.Snapshot().State)
}

func TestBootstrapSeedsExistingState(t *testing.T) {
	service := &fakeService{probe: assessment("Los Angeles", 4)}
	c := New(service, testCatalog)

	var phases []Phase
	c.OnChange(func(s Snapshot) { phases = append(phases, s.Phase) })

	require.NoError(t, c.Bootstrap(context.Background()))
	snapshot := c.Snapshot()
	require.NotNil(t, snapshot.State)
	assert.Equal(t, risk.Region("Los Angeles"), snapshot.State.Region)
	assert.Equal(t, risk.Region("Shanghai"), snapshot.SelectedRegion)
	assert.Equal(t, risk.Region("Los Angeles"), c.CurrentRegion())
	assert.NotContains(t, phases, PhaseLoading)
	assert.Zero(t, service.analyzeCalls.Load())
}

func TestBootstrapAbsentVersusFailedAnalyze(t *testing.T) {
	absent := New(&fakeService{}, testCatalog)
	require.NoError(t, absent.Bootstrap(context.Background()))
	absentSnapshot := absent.Snapshot()
	assert.Equal(t, PhaseIdle, absentSnapshot.Phase)
	assert.Nil(t, absentSnapshot.State)
	assert.Empty(t, absentSnapshot.Error)

	failed := New(&fakeService{results: []analyzeResult{{err: &cwerrors.AnalysisFailed{Reason: "HTTP 500 Internal Server Error"}}}}, testCatalog)
	require.Error(t, failed.Analyze(context.Background()))
	failedSnapshot := failed.Snapshot()
	assert.Equal(t, PhaseIdle, failedSnapshot.Phase)
	assert.Nil(t, failedSnapshot.State)
	assert.Equal(t, "HTTP 500 Internal Server Error", failedSnapshot.Error)
}

func TestBootstrapProbeFailureIsSilent(t *testing.T) {
	service := &fakeService{probeErr: &cwerrors.ServiceUnavailable{Operation: "current state"}}
	c := New(service, testCatalog)

	err := c.Bootstrap(context.Background())
	assert.True(t, cwerrors.IsServiceUnavailable(err))
	assert.Empty(t, c.Snapshot().Error)
	assert.Nil(t, c.Snapshot().State)
}

func TestBootstrapRunsOnce(t *testing.T) {
	service := &fakeService{}
	c := New(service, testCatalog)

	require.NoError(t, c.Bootstrap(context.Background()))
	require.NoError(t, c.Bootstrap(context.Background()))
	assert.Equal(t, int32(1), service.probeCalls.Load())
}

func TestBootstrapDoesNotOverrideFreshAnalysis(t *testing.T) {
	service := &fakeService{
		probe:     assessment("Shanghai", 1),
		probeGate: make(chan struct{}),
		results:   []analyzeResult{{state: assessment("Rotterdam", 4)}},
	}
	c := New(service, testCatalog)

	done := make(chan error, 1)
	go func() { done <- c.Bootstrap(context.Background()) }()

	require.Eventually(t, func() bool { return service.probeCalls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.SelectRegion("Rotterdam"))
	require.NoError(t, c.Analyze(context.Background()))

	close(service.probeGate)
	require.NoError(t, <-done)
	assert.Equal(t, risk.Region("Rotterdam"), c.Snapshot().State.Region)
}

func TestSnapshotStateIsACopy(t *testing.T) {
	service := &fakeService{results: []analyzeResult{{state: assessment("Shanghai", 2)}}}
	c := New(service, testCatalog)
	require.NoError(t, c.Analyze(context.Background()))

	snapshot := c.Snapshot()
	snapshot.State.AggregatedRisk.RiskScore = 5
	assert.Equal(t, 2.0, c.State().AggregatedRisk.RiskScore)
}
