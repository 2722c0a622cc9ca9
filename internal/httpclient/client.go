package httpclient

import (
	"net/http"
	"time"

	"chainwatch/internal/logging"
)

// New builds the HTTP client used to reach the risk service. Requests are
// logged at debug level with their latency.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 4
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   base,
			logger: logging.OrNop(logger),
		},
	}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(started).Round(time.Millisecond)

	logger := logging.FromContext(req.Context(), t.logger)
	if err != nil {
		logger.Debug("%s %s failed after %s: %v", req.Method, req.URL.Path, elapsed, err)
		return nil, err
	}
	logger.Debug("%s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, elapsed)
	return resp, nil
}
