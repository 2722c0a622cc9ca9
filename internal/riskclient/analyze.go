package riskclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/risk"
)

// Analyze asks the service for a fresh assessment of region. It may take
// seconds. Every failure, including a payload that fails validation, is an
// *errors.AnalysisFailed; aggregation violations wrap *errors.InvalidAggregation.
func (c *Client) Analyze(ctx context.Context, region risk.Region) (state *risk.SystemState, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanAnalyze, observability.RegionAttrs(string(region))...)
	started := time.Now()
	defer func() {
		c.metrics.RecordAnalyze(ctx, string(region), statusLabel(err), time.Since(started))
		observability.EndSpan(span, err)
	}()

	logger := logging.FromContext(ctx, c.logger)

	if strings.TrimSpace(string(region)) == "" {
		return nil, &cwerrors.AnalysisFailed{Reason: "no region selected"}
	}

	resp, err := c.do(ctx, http.MethodPost, "/analyze/"+url.PathEscape(string(region)), nil)
	if err != nil {
		return nil, &cwerrors.AnalysisFailed{
			Region:     string(region),
			Reason:     cwerrors.Reason(err),
			StatusCode: resp.status,
			Err:        err,
		}
	}
	if !resp.ok() {
		return nil, &cwerrors.AnalysisFailed{
			Region:     string(region),
			Reason:     errorDetail(resp),
			StatusCode: resp.status,
		}
	}

	var raw risk.RawState
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, &cwerrors.AnalysisFailed{
			Region:     string(region),
			Reason:     "malformed response from risk service",
			StatusCode: resp.status,
			Err:        err,
		}
	}

	switch status := raw.StatusOrDefault(); status {
	case risk.StatusCompleted:
	case risk.StatusError:
		reason := "risk service reported an error"
		if raw.ErrorMessage != nil && *raw.ErrorMessage != "" {
			reason = *raw.ErrorMessage
		}
		return nil, &cwerrors.AnalysisFailed{Region: string(region), Reason: reason, StatusCode: resp.status}
	default:
		return nil, &cwerrors.AnalysisFailed{
			Region:     string(region),
			Reason:     fmt.Sprintf("analysis did not complete (status %s)", status),
			StatusCode: resp.status,
		}
	}

	state, err = risk.ValidateState(raw)
	if err != nil {
		if violation, ok := cwerrors.AsInvalidAggregation(err); ok {
			logger.Warn("rejecting assessment of %s: %s", region, violation)
		}
		return nil, &cwerrors.AnalysisFailed{
			Region:     string(region),
			Reason:     err.Error(),
			StatusCode: resp.status,
			Err:        err,
		}
	}

	span.SetAttributes(observability.RiskAttrs(string(state.AggregatedRisk.RiskLevel), state.AggregatedRisk.RiskScore)...)
	logger.Info("analysis of %s completed: score %.1f (%s)", region, state.AggregatedRisk.RiskScore, state.AggregatedRisk.RiskLevel)
	return state, nil
}
