package riskclient

import (
	"context"
	"encoding/json"
	"net/http"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/observability"
	"chainwatch/internal/risk"
)

type regionsPayload struct {
	Regions []string                     `json:"regions"`
	Details map[string]risk.RegionDetail `json:"details"`
}

// ListRegions fetches the analyzable regions in service order together with
// their geographic details. Any failure is a *errors.ServiceUnavailable.
func (c *Client) ListRegions(ctx context.Context) (regions []risk.Region, details map[risk.Region]risk.RegionDetail, err error) {
	ctx, span := c.tracer.StartSpan(ctx, observability.SpanListRegions)
	defer func() { observability.EndSpan(span, err) }()

	unavailable := func(status int, cause error) error {
		return &cwerrors.ServiceUnavailable{Operation: "list regions", StatusCode: status, Err: cause}
	}

	resp, err := c.do(ctx, http.MethodGet, "/regions", nil)
	if err != nil {
		return nil, nil, unavailable(resp.status, err)
	}
	if !resp.ok() {
		return nil, nil, unavailable(resp.status, errorFromDetail(resp))
	}

	var payload regionsPayload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, nil, unavailable(resp.status, err)
	}

	regions = make([]risk.Region, 0, len(payload.Regions))
	for _, name := range payload.Regions {
		regions = append(regions, risk.Region(name))
	}
	details = make(map[risk.Region]risk.RegionDetail, len(payload.Details))
	for name, detail := range payload.Details {
		details[risk.Region(name)] = detail
	}
	c.logger.Debug("risk service lists %d regions", len(regions))
	return regions, details, nil
}

type detailError string

func (e detailError) Error() string { return string(e) }

func errorFromDetail(resp response) error {
	return detailError(errorDetail(resp))
}
