package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BreakerMetrics tracks the risk-service circuit breaker and oversized responses.
type BreakerMetrics struct {
	state         *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	oversizedBody prometheus.Counter
}

// NewBreakerMetrics registers the breaker metrics on reg. A nil registerer
// yields a recorder whose methods are no-ops.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &BreakerMetrics{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainwatch",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainwatch",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"name", "to"}),
		oversizedBody: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chainwatch",
			Subsystem: "client",
			Name:      "oversized_responses_total",
			Help:      "Risk service responses rejected for exceeding the body limit",
		}),
	}
}

// ObserveTransition records a breaker moving into state `to`.
func (m *BreakerMetrics) ObserveTransition(name string, to int, label string) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(name).Set(float64(to))
	m.transitions.WithLabelValues(name, label).Inc()
}

// ObserveOversizedResponse counts a response body over the configured limit.
func (m *BreakerMetrics) ObserveOversizedResponse() {
	if m == nil {
		return
	}
	m.oversizedBody.Inc()
}
