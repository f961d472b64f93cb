package bridge

import (
	"encoding/hex"
	"strconv"

	"crosslock/core/types"
)

const (
	EventTypeValidatorRegistered = "bridge.validator.registered"
	EventTypeValidatorRemoved    = "bridge.validator.removed"
	EventTypeValidatorSlashed    = "bridge.validator.slashed"
	EventTypeMessageSent         = "bridge.sent"
	EventTypeMessageExecuted     = "bridge.executed"
	EventTypePaused              = "bridge.paused"
	EventTypeUnpaused            = "bridge.unpaused"
)

type bridgeEvent struct {
	evt *types.Event
}

func (e bridgeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bridgeEvent) Event() *types.Event { return e.evt }

func newValidatorEvent(eventType string, v *ValidatorInfo) bridgeEvent {
	attrs := make(map[string]string)
	evt := &types.Event{Type: eventType, Attributes: attrs}
	if v == nil {
		return bridgeEvent{evt: evt}
	}
	attrs["validator"] = hex.EncodeToString(v.Addr[:])
	if v.Stake != nil {
		attrs["stake"] = v.Stake.String()
	}
	attrs["active"] = strconv.FormatBool(v.Active)
	attrs["slashCount"] = strconv.FormatUint(uint64(v.SlashCount), 10)
	return bridgeEvent{evt: evt}
}

func NewValidatorRegisteredEvent(v *ValidatorInfo) bridgeEvent {
	return newValidatorEvent(EventTypeValidatorRegistered, v)
}

func NewValidatorRemovedEvent(v *ValidatorInfo) bridgeEvent {
	return newValidatorEvent(EventTypeValidatorRemoved, v)
}

func NewValidatorSlashedEvent(v *ValidatorInfo) bridgeEvent {
	return newValidatorEvent(EventTypeValidatorSlashed, v)
}

func newMessageEvent(eventType string, m *Message, digest [32]byte) bridgeEvent {
	attrs := make(map[string]string)
	evt := &types.Event{Type: eventType, Attributes: attrs}
	if m == nil {
		return bridgeEvent{evt: evt}
	}
	attrs["digest"] = hex.EncodeToString(digest[:])
	attrs["sourceChain"] = m.SourceChainRef
	attrs["targetChain"] = m.TargetChainRef
	attrs["sender"] = hex.EncodeToString(m.Sender[:])
	attrs["target"] = m.Target
	attrs["payload"] = hex.EncodeToString(m.Payload)
	attrs["nonce"] = strconv.FormatUint(m.Nonce, 10)
	attrs["timestamp"] = strconv.FormatInt(m.Timestamp, 10)
	return bridgeEvent{evt: evt}
}

// NewMessageSentEvent carries the full outbound message plus its digest so
// validators can sign without recomputing fields.
func NewMessageSentEvent(m *Message, digest [32]byte) bridgeEvent {
	return newMessageEvent(EventTypeMessageSent, m, digest)
}

// NewMessageExecutedEvent records a completed execution attempt. The digest is
// burned either way; ok distinguishes handler success from handler failure.
func NewMessageExecutedEvent(m *Message, digest [32]byte, ok bool) bridgeEvent {
	event := newMessageEvent(EventTypeMessageExecuted, m, digest)
	event.evt.Attributes["ok"] = strconv.FormatBool(ok)
	return event
}

func NewBridgePausedEvent(caller [20]byte) bridgeEvent {
	return bridgeEvent{evt: &types.Event{
		Type:       EventTypePaused,
		Attributes: map[string]string{"caller": hex.EncodeToString(caller[:])},
	}}
}

func NewBridgeUnpausedEvent(caller [20]byte) bridgeEvent {
	return bridgeEvent{evt: &types.Event{
		Type:       EventTypeUnpaused,
		Attributes: map[string]string{"caller": hex.EncodeToString(caller[:])},
	}}
}
