package htlc

import (
	"encoding/hex"
	"strconv"

	"crosslock/core/types"
)

const (
	EventTypeLocked    = "htlc.locked"
	EventTypeWithdrawn = "htlc.withdrawn"
	EventTypeRefunded  = "htlc.refunded"
)

type recordEvent struct {
	evt *types.Event
}

func (e recordEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e recordEvent) Event() *types.Event { return e.evt }

// NewLockedEvent returns the canonical payload for a new lock. It carries
// every field the counterpart leg needs to be independently constructed and
// verified off-chain.
func NewLockedEvent(r *Record) recordEvent { return newRecordEvent(EventTypeLocked, r) }

// NewWithdrawnEvent returns the payload emitted on secret reveal. The secret
// itself is included; it is public from this point on.
func NewWithdrawnEvent(r *Record) recordEvent { return newRecordEvent(EventTypeWithdrawn, r) }

// NewRefundedEvent returns the payload emitted when a lock reverts to the
// sender after expiry.
func NewRefundedEvent(r *Record) recordEvent { return newRecordEvent(EventTypeRefunded, r) }

func newRecordEvent(eventType string, r *Record) recordEvent {
	attrs := make(map[string]string)
	evt := &types.Event{Type: eventType, Attributes: attrs}
	if r == nil {
		return recordEvent{evt: evt}
	}
	sanitized, err := SanitizeRecord(r)
	if err != nil {
		return recordEvent{evt: evt}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["sender"] = hex.EncodeToString(sanitized.Sender[:])
	attrs["recipient"] = hex.EncodeToString(sanitized.Recipient[:])
	attrs["asset"] = sanitized.Asset
	attrs["amount"] = sanitized.Amount.String()
	attrs["grossAmount"] = sanitized.GrossAmount.String()
	attrs["fee"] = sanitized.Fee.String()
	attrs["commitment"] = hex.EncodeToString(sanitized.Commitment[:])
	attrs["deadline"] = strconv.FormatInt(sanitized.Deadline, 10)
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	attrs["status"] = sanitized.Status.String()
	if sanitized.OriginChainRef != "" {
		attrs["originChain"] = sanitized.OriginChainRef
	}
	if sanitized.CounterpartyRef != ([32]byte{}) {
		attrs["counterpartyRef"] = hex.EncodeToString(sanitized.CounterpartyRef[:])
	}
	if eventType == EventTypeWithdrawn && len(sanitized.Secret) > 0 {
		attrs["secret"] = hex.EncodeToString(sanitized.Secret)
	}
	return recordEvent{evt: evt}
}
