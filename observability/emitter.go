package observability

import (
	"math/big"

	"crosslock/core/events"
	"crosslock/native/bridge"
	"crosslock/native/htlc"
	"crosslock/native/orderbook"
	"crosslock/observability/metrics"
)

// MetricsEmitter translates engine events into prometheus series. It wraps an
// inner emitter so event delivery and instrumentation share one wiring point.
type MetricsEmitter struct {
	inner events.Emitter
}

// NewMetricsEmitter decorates the supplied emitter. A nil inner emitter is
// replaced with a no-op.
func NewMetricsEmitter(inner events.Emitter) *MetricsEmitter {
	if inner == nil {
		inner = events.NoopEmitter{}
	}
	return &MetricsEmitter{inner: inner}
}

// Emit records the event's metric series and forwards it unchanged.
func (m *MetricsEmitter) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	defer m.inner.Emit(evt)

	payload := evt.Event()
	if payload == nil {
		return
	}
	attrs := payload.Attributes
	switch payload.Type {
	case htlc.EventTypeLocked:
		metrics.Swap().RecordLock(attrs["asset"], attrAmount(attrs["amount"]))
	case htlc.EventTypeWithdrawn:
		metrics.Swap().RecordWithdraw(attrs["asset"], attrAmount(attrs["amount"]))
	case htlc.EventTypeRefunded:
		metrics.Swap().RecordRefund(attrs["asset"], attrAmount(attrs["amount"]))
	case orderbook.EventTypeOrderCreated,
		orderbook.EventTypeOrderMatched,
		orderbook.EventTypeOrderCompleted,
		orderbook.EventTypeOrderCancelled,
		orderbook.EventTypeOrderExpired,
		orderbook.EventTypeOrderDisputed:
		metrics.Swap().RecordOrder(attrs["status"])
	case bridge.EventTypeMessageSent:
		metrics.Bridge().RecordSent()
	case bridge.EventTypeMessageExecuted:
		outcome := "ok"
		if attrs["ok"] != "true" {
			outcome = "handler_error"
		}
		metrics.Bridge().RecordExecution(outcome)
	case bridge.EventTypeValidatorSlashed:
		metrics.Bridge().RecordSlash()
	}
}

func attrAmount(raw string) float64 {
	if raw == "" {
		return 0
	}
	parsed, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0
	}
	value, _ := parsed.Float64()
	return value
}
