// Package riskclient speaks the risk service's HTTP+JSON contract. It detects
// malformed payloads before they reach any controller and never retries.
package riskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/httpclient"
	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/utils/id"
)

const (
	// DefaultBaseURL is where the risk service listens in a local setup.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout covers a full multi-agent analysis.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxResponseBytes caps any single response body.
	DefaultMaxResponseBytes int64 = 4 << 20

	breakerName = "risk-service"
)

// Config configures the risk service client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	MaxResponseBytes int64
	Breaker          cwerrors.CircuitBreakerConfig
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(logger) }
}

// WithTracer sets the tracer provider used for per-call spans.
func WithTracer(tracer *observability.TracerProvider) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMetrics sets the collector receiving request metrics.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithBreakerMetrics exports breaker transitions and oversized responses.
func WithBreakerMetrics(metrics *observability.BreakerMetrics) Option {
	return func(c *Client) { c.breakerMetrics = metrics }
}

// Client is the RiskServiceClient. It is safe for concurrent use.
type Client struct {
	baseURL          string
	maxResponseBytes int64
	httpClient       *http.Client
	breaker          *cwerrors.CircuitBreaker

	logger         logging.Logger
	tracer         *observability.TracerProvider
	metrics        *observability.MetricsCollector
	breakerMetrics *observability.BreakerMetrics
}

// New builds a client whose transport is guarded by a circuit breaker.
func New(config Config, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(config.BaseURL), "/"),
		maxResponseBytes: config.MaxResponseBytes,
		logger:           logging.Nop(),
		tracer:           observability.NewNoopTracerProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxResponseBytes <= 0 {
		c.maxResponseBytes = DefaultMaxResponseBytes
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	breakerConfig := config.Breaker
	userHook := breakerConfig.OnStateChange
	breakerConfig.OnStateChange = func(from, to cwerrors.CircuitState, name string) {
		c.breakerMetrics.ObserveTransition(name, int(to), to.String())
		if userHook != nil {
			userHook(from, to, name)
		}
	}
	c.httpClient, c.breaker = httpclient.NewWithCircuitBreaker(timeout, c.logger, breakerName, breakerConfig)
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Breaker reports the transport circuit breaker's current statistics.
func (c *Client) Breaker() cwerrors.CircuitBreakerMetrics {
	return c.breaker.Metrics()
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do issues one request. Transport failures, including an open breaker, are
// returned unchanged for the caller to map onto its failure type.
func (c *Client) do(ctx context.Context, method, path string, payload any) (response, error) {
	ctx, logID := id.EnsureLogID(ctx, id.NewLogID)

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if logID != "" {
		req.Header.Set("X-Log-Id", logID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, err
	}
	data, err := httpclient.ReadBody(resp, c.maxResponseBytes)
	if err != nil {
		if httpclient.IsResponseTooLarge(err) {
			c.breakerMetrics.ObserveOversizedResponse()
		}
		return response{status: resp.StatusCode}, fmt.Errorf("read response: %w", err)
	}
	return response{status: resp.StatusCode, body: data}, nil
}

// errorDetail extracts a FastAPI-style {"detail": ...} message, falling back
// to the HTTP status.
func errorDetail(resp response) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(resp.body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var text string
		if err := json.Unmarshal(envelope.Detail, &text); err == nil && text != "" {
			return text
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	return fmt.Sprintf("HTTP %d %s", resp.status, http.StatusText(resp.status))
}

func isNull(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	if _, ok := cwerrors.AsInvalidAggregation(err); ok {
		return "invalid"
	}
	return "error"
}
