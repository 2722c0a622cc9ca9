package riskclient

import (
	"context"
	"encoding/json"
	"net/http"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/risk"
)

// CurrentState probes for an assessment the service already holds. It never
// triggers an analysis. A missing, unfinished or failed assessment is reported
// as nil with no error; transport failures and stored payloads that do not
// validate are *errors.ServiceUnavailable.
func (c *Client) CurrentState(ctx context.Context) (state *risk.SystemState, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanCurrentState)
	defer func() { observability.EndSpan(span, err) }()

	logger := logging.FromContext(ctx, c.logger)
	unavailable := func(status int, cause error) error {
		return &cwerrors.ServiceUnavailable{Operation: "current state", StatusCode: status, Err: cause}
	}

	resp, err := c.do(ctx, http.MethodGet, "/state", nil)
	if err != nil {
		return nil, unavailable(resp.status, err)
	}
	if !resp.ok() {
		return nil, unavailable(resp.status, errorFromDetail(resp))
	}
	if isNull(resp.body) {
		return nil, nil
	}

	var raw risk.RawState
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, unavailable(resp.status, err)
	}

	if status := raw.StatusOrDefault(); status != risk.StatusCompleted || raw.AggregatedRisk == nil {
		logger.Debug("stored state not usable (status %s)", status)
		return nil, nil
	}

	state, err = risk.ValidateState(raw)
	if err != nil {
		return nil, unavailable(resp.status, err)
	}
	return state, nil
}

// StateSummary is the compact view served by /state/summary.
type StateSummary struct {
	Status      string         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Region      risk.Region    `json:"region,omitempty"`
	RiskLevel   risk.RiskLevel `json:"risk_level,omitempty"`
	RiskScore   *float64       `json:"risk_score,omitempty"`
	LastUpdated *string        `json:"last_updated,omitempty"`
}

// HasData reports whether the service holds an assessment.
func (s StateSummary) HasData() bool {
	return s.Status == "ok"
}

// Summary fetches the compact state summary.
func (c *Client) Summary(ctx context.Context) (summary StateSummary, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanSummary)
	defer func() { observability.EndSpan(span, err) }()

	resp, err := c.do(ctx, http.MethodGet, "/state/summary", nil)
	if err != nil {
		return StateSummary{}, &cwerrors.ServiceUnavailable{Operation: "state summary", StatusCode: resp.status, Err: err}
	}
	if !resp.ok() {
		return StateSummary{}, &cwerrors.ServiceUnavailable{Operation: "state summary", StatusCode: resp.status, Err: errorFromDetail(resp)}
	}
	if err := json.Unmarshal(resp.body, &summary); err != nil {
		return StateSummary{}, &cwerrors.ServiceUnavailable{Operation: "state summary", StatusCode: resp.status, Err: err}
	}
	return summary, nil
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Healthy reports whether the service declared itself healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) (health HealthStatus, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanHealth)
	defer func() { observability.EndSpan(span, err) }()

	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return HealthStatus{}, &cwerrors.ServiceUnavailable{Operation: "health", StatusCode: resp.status, Err: err}
	}
	if !resp.ok() {
		return HealthStatus{}, &cwerrors.ServiceUnavailable{Operation: "health", StatusCode: resp.status, Err: errorFromDetail(resp)}
	}
	if err := json.Unmarshal(resp.body, &health); err != nil {
		return HealthStatus{}, &cwerrors.ServiceUnavailable{Operation: "health", StatusCode: resp.status, Err: err}
	}
	return health, nil
}
