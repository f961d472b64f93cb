package bridge

import (
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// digestDomain versions the canonical rendering. Bump it whenever the field
// set or encoding changes so signatures over old renderings can never carry
// over.
const digestDomain = "CROSSLOCK_BRIDGE_V1"

// CanonicalMessage renders the pipe-delimited string whose keccak256 digest
// validators sign. Any party can reproduce it from public message fields.
func (m *Message) CanonicalMessage() (string, error) {
	normalized, err := m.normalize()
	if err != nil {
		return "", err
	}
	builder := strings.Builder{}
	builder.WriteString(digestDomain)
	builder.WriteString("|src=")
	builder.WriteString(normalized.SourceChainRef)
	builder.WriteString("|dst=")
	builder.WriteString(normalized.TargetChainRef)
	builder.WriteString("|sender=")
	builder.WriteString(hex.EncodeToString(normalized.Sender[:]))
	builder.WriteString("|target=")
	builder.WriteString(normalized.Target)
	builder.WriteString("|payload=")
	builder.WriteString(hex.EncodeToString(normalized.Payload))
	builder.WriteString("|nonce=")
	builder.WriteString(fmt.Sprintf("%d", normalized.Nonce))
	builder.WriteString("|ts=")
	builder.WriteString(fmt.Sprintf("%d", normalized.Timestamp))
	return builder.String(), nil
}

// Digest computes the keccak256 digest of the canonical message.
func (m *Message) Digest() ([32]byte, error) {
	var digest [32]byte
	message, err := m.CanonicalMessage()
	if err != nil {
		return digest, err
	}
	copy(digest[:], ethcrypto.Keccak256([]byte(message)))
	return digest, nil
}

// ComputeMessageDigest derives the digest directly from message fields. Pure;
// exported so counterparties and relayers can pre-compute digests without a
// Message value or any engine state.
func ComputeMessageDigest(sourceChainRef, targetChainRef string, sender [20]byte, target string, payload []byte, nonce uint64, timestamp int64) ([32]byte, error) {
	msg := &Message{
		SourceChainRef: sourceChainRef,
		TargetChainRef: targetChainRef,
		Sender:         sender,
		Target:         target,
		Payload:        payload,
		Nonce:          nonce,
		Timestamp:      timestamp,
	}
	return msg.Digest()
}
