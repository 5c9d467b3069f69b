// Package metrics exports paid-fetch transitions as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	x402 "github.com/x402-foundation/x402fetch"
)

// Metrics holds the Prometheus collectors of the client. It implements
// x402.TransitionSink.
type Metrics struct {
	transitionsTotal *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	callsTotal       *prometheus.CounterVec
	callDuration     *prometheus.HistogramVec
}

var _ x402.TransitionSink = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402fetch_transitions_total",
				Help: "Total number of fetch state transitions by target state and network",
			},
			[]string{"state", "network"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402fetch_errors_total",
				Help: "Total number of failed calls by error kind",
			},
			[]string{"kind"},
		),
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402fetch_calls_total",
				Help: "Total number of finished calls by outcome",
			},
			[]string{"outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402fetch_call_duration_seconds",
				Help:    "Duration of finished calls in seconds, probe to final response",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"outcome"},
		),
	}
}

// OnTransition implements x402.TransitionSink
func (m *Metrics) OnTransition(t x402.StateTransition) {
	network := string(t.Network)
	if network == "" {
		network = "none"
	}
	m.transitionsTotal.WithLabelValues(t.To.String(), network).Inc()

	if t.Err != nil {
		kind := "unknown"
		var protoErr *x402.ProtocolError
		if errors.As(t.Err, &protoErr) {
			kind = string(protoErr.Kind)
		}
		m.errorsTotal.WithLabelValues(kind).Inc()
	}

	if !t.Final {
		return
	}
	outcome := Outcome(t.To)
	m.callsTotal.WithLabelValues(outcome).Inc()
	m.callDuration.WithLabelValues(outcome).Observe(t.Elapsed.Seconds())
}

// Outcome names the result of a call that ended in state.
func Outcome(state x402.FetchState) string {
	switch state {
	case x402.StateInitialRequest:
		return "free"
	case x402.StateSettled:
		return "settled"
	case x402.StatePaymentFailed:
		return "payment_failed"
	case x402.StatePaymentAlreadyAttempted:
		return "already_attempted"
	default:
		return "error"
	}
}

// Handler serves the metrics gathered by gatherer. A nil gatherer means
// prometheus.DefaultGatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
