package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeMetrics tracks relayed message and validator registry activity.
type BridgeMetrics struct {
	sent       prometheus.Counter
	executions *prometheus.CounterVec
	slashes    prometheus.Counter
	validators *prometheus.GaugeVec
}

var (
	bridgeOnce     sync.Once
	bridgeRegistry *BridgeMetrics
)

// Bridge returns the lazily-initialised registry for bridge activity.
func Bridge() *BridgeMetrics {
	bridgeOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			sent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslock_bridge_sent_total",
				Help: "Count of outbound messages assembled for relay.",
			}),
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "crosslock_bridge_executions_total",
				Help: "Count of inbound message executions by outcome.",
			}, []string{"outcome"}),
			slashes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "crosslock_bridge_slashes_total",
				Help: "Count of validator slash operations.",
			}),
			validators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "crosslock_bridge_validators",
				Help: "Registered validators segmented by active flag.",
			}, []string{"active"}),
		}
		prometheus.MustRegister(
			bridgeRegistry.sent,
			bridgeRegistry.executions,
			bridgeRegistry.slashes,
			bridgeRegistry.validators,
		)
	})
	return bridgeRegistry
}

// RecordSent counts an assembled outbound message.
func (m *BridgeMetrics) RecordSent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

// RecordExecution counts an inbound execution attempt. Outcome is one of
// "ok", "rejected", or "handler_error".
func (m *BridgeMetrics) RecordExecution(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.executions.WithLabelValues(outcome).Inc()
}

// RecordSlash counts a slash operation.
func (m *BridgeMetrics) RecordSlash() {
	if m == nil {
		return
	}
	m.slashes.Inc()
}

// SetValidatorCounts publishes the current registry composition.
func (m *BridgeMetrics) SetValidatorCounts(active, inactive int) {
	if m == nil {
		return
	}
	m.validators.WithLabelValues("true").Set(float64(active))
	m.validators.WithLabelValues("false").Set(float64(inactive))
}
