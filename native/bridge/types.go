package bridge

import (
	"fmt"
	"math/big"

	"crosslock/native/policy"
)

// ValidatorInfo is one entry in the bridge validator registry. Mutated only by
// admin-gated register/remove/slash calls and by the validator's own liveness
// heartbeats.
type ValidatorInfo struct {
	Addr       [20]byte
	Stake      *big.Int
	Active     bool
	JoinedAt   int64
	LastSeen   int64
	SlashCount uint32
}

// Clone returns a deep copy.
func (v *ValidatorInfo) Clone() *ValidatorInfo {
	if v == nil {
		return nil
	}
	clone := *v
	if v.Stake != nil {
		clone.Stake = new(big.Int).Set(v.Stake)
	}
	return &clone
}

// SanitizeValidator normalises a validator entry before persistence, ensuring
// the stake pointer is populated and non-negative.
func SanitizeValidator(v *ValidatorInfo) (*ValidatorInfo, error) {
	if v == nil {
		return nil, ErrNilValidator
	}
	sanitized := v.Clone()
	if sanitized.Stake == nil {
		sanitized.Stake = big.NewInt(0)
	}
	if sanitized.Stake.Sign() < 0 {
		return nil, fmt.Errorf("bridge: validator %x stake negative", v.Addr)
	}
	return sanitized, nil
}

// Config is the process-wide bridge policy. A single instance exists per node
// and only the configured admin may mutate it.
type Config struct {
	RequiredSignatures uint32
	MessageTimeout     int64 // seconds
	MinStake           *big.Int
	SlashAmount        *big.Int
	Paused             bool
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.MinStake != nil {
		clone.MinStake = new(big.Int).Set(c.MinStake)
	}
	if c.SlashAmount != nil {
		clone.SlashAmount = new(big.Int).Set(c.SlashAmount)
	}
	return &clone
}

// Validate checks the policy values for internal consistency.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("bridge: config required")
	}
	if c.RequiredSignatures == 0 {
		return fmt.Errorf("bridge: required signatures must be positive")
	}
	if c.MessageTimeout <= 0 {
		return fmt.Errorf("bridge: message timeout must be positive")
	}
	if c.MinStake == nil || c.MinStake.Sign() <= 0 {
		return fmt.Errorf("bridge: minimum stake must be positive")
	}
	if c.SlashAmount == nil || c.SlashAmount.Sign() <= 0 {
		return fmt.Errorf("bridge: slash amount must be positive")
	}
	return nil
}

// Message is one cross-chain invocation request. The digest over its canonical
// rendering, not the struct itself, is what validators sign and what the
// replay guard records.
type Message struct {
	SourceChainRef string
	TargetChainRef string
	Sender         [20]byte
	Target         string // handler name on the target chain
	Payload        []byte
	Nonce          uint64
	Timestamp      int64
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Payload != nil {
		clone.Payload = append([]byte(nil), m.Payload...)
	}
	return &clone
}

func (m *Message) normalize() (*Message, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	clone := m.Clone()
	clone.SourceChainRef = policy.NormalizeChainRef(m.SourceChainRef)
	clone.TargetChainRef = policy.NormalizeChainRef(m.TargetChainRef)
	if clone.SourceChainRef == "" || clone.TargetChainRef == "" {
		return nil, fmt.Errorf("%w: chain refs required", ErrInvalidMessage)
	}
	if clone.SourceChainRef == clone.TargetChainRef {
		return nil, fmt.Errorf("%w: source and target chains must differ", ErrInvalidMessage)
	}
	if clone.Target == "" {
		return nil, fmt.Errorf("%w: target required", ErrInvalidMessage)
	}
	if clone.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: timestamp required", ErrInvalidMessage)
	}
	return clone, nil
}
