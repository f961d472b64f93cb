package orderbook

import (
	"encoding/hex"
	"strconv"
	"strings"

	"crosslock/core/types"
)

const (
	EventTypeOrderCreated       = "order.created"
	EventTypeOrderMatched       = "order.matched"
	EventTypeOrderCompleted     = "order.completed"
	EventTypeOrderCancelled     = "order.cancelled"
	EventTypeOrderExpired       = "order.expired"
	EventTypeOrderDisputed      = "order.disputed"
	EventTypeResolverRegistered = "order.resolver.registered"
)

type orderEvent struct {
	evt *types.Event
}

func (e orderEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e orderEvent) Event() *types.Event { return e.evt }

// NewOrderCreatedEvent emits the canonical payload for a new swap intent.
func NewOrderCreatedEvent(o *Order) orderEvent { return newOrderEvent(EventTypeOrderCreated, o) }

// NewOrderMatchedEvent emits the payload when a resolver takes an order.
// Relayers watch this to construct the destination leg.
func NewOrderMatchedEvent(o *Order) orderEvent { return newOrderEvent(EventTypeOrderMatched, o) }

// NewOrderCompletedEvent emits the payload for a settled order.
func NewOrderCompletedEvent(o *Order) orderEvent { return newOrderEvent(EventTypeOrderCompleted, o) }

// NewOrderCancelledEvent emits the payload for a maker cancellation.
func NewOrderCancelledEvent(o *Order) orderEvent { return newOrderEvent(EventTypeOrderCancelled, o) }

// NewOrderExpiredEvent emits the payload for permissionless expiry cleanup.
func NewOrderExpiredEvent(o *Order) orderEvent { return newOrderEvent(EventTypeOrderExpired, o) }

// NewOrderDisputedEvent emits the payload for a failed fill.
func NewOrderDisputedEvent(o *Order) orderEvent { return newOrderEvent(EventTypeOrderDisputed, o) }

func newOrderEvent(eventType string, o *Order) orderEvent {
	attrs := make(map[string]string)
	evt := &types.Event{Type: eventType, Attributes: attrs}
	if o == nil {
		return orderEvent{evt: evt}
	}
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return orderEvent{evt: evt}
	}
	attrs["orderId"] = hex.EncodeToString(sanitized.ID[:])
	attrs["maker"] = hex.EncodeToString(sanitized.Maker[:])
	attrs["srcAsset"] = sanitized.SrcAsset
	attrs["dstAsset"] = sanitized.DstAsset
	attrs["srcAmount"] = sanitized.SrcAmount.String()
	attrs["dstAmount"] = sanitized.DstAmount.String()
	attrs["srcChain"] = sanitized.SrcChainRef
	attrs["dstChain"] = sanitized.DstChainRef
	attrs["commitment"] = hex.EncodeToString(sanitized.Commitment[:])
	attrs["deadline"] = strconv.FormatInt(sanitized.Deadline, 10)
	attrs["nonce"] = strconv.FormatUint(sanitized.Nonce, 10)
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	attrs["status"] = sanitized.Status.String()
	if !sanitized.OpenToAnyTaker() {
		attrs["taker"] = hex.EncodeToString(sanitized.Taker[:])
	}
	if sanitized.HTLCRef != ([32]byte{}) {
		attrs["htlcRef"] = hex.EncodeToString(sanitized.HTLCRef[:])
	}
	if sanitized.Resolver != ([20]byte{}) {
		attrs["resolver"] = hex.EncodeToString(sanitized.Resolver[:])
	}
	if sanitized.MatchedAt != 0 {
		attrs["matchedAt"] = strconv.FormatInt(sanitized.MatchedAt, 10)
	}
	return orderEvent{evt: evt}
}

// NewResolverRegisteredEvent emits the payload for a resolver registration.
func NewResolverRegisteredEvent(r *Resolver) orderEvent {
	attrs := make(map[string]string)
	evt := &types.Event{Type: EventTypeResolverRegistered, Attributes: attrs}
	if r == nil {
		return orderEvent{evt: evt}
	}
	attrs["resolver"] = hex.EncodeToString(r.Addr[:])
	attrs["chains"] = strings.Join(r.Chains, ",")
	attrs["minFeeBps"] = strconv.FormatUint(uint64(r.MinFeeBps), 10)
	attrs["active"] = strconv.FormatBool(r.Active)
	return orderEvent{evt: evt}
}
