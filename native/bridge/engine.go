package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslock/core/events"
	nativecommon "crosslock/native/common"
	"crosslock/native/policy"
)

var (
	errNilState  = errors.New("bridge engine: state not configured")
	errNilConfig = errors.New("bridge engine: config not configured")
	errNilChains = errors.New("bridge engine: chain set not configured")
)

// Handler is the single callback a bridge consumer implements to receive
// authenticated cross-chain calls. It is invoked at most once per distinct
// message digest, and only after threshold verification passed.
type Handler func(msg *Message) error

// engineState is the persistence surface required by the bridge.
type engineState interface {
	ValidatorPut(*ValidatorInfo) error
	ValidatorGet(addr [20]byte) (*ValidatorInfo, bool)
	ValidatorAddresses() ([][20]byte, error)
	BridgeConfigPut(*Config) error
	BridgeConfigGet() (*Config, bool)
	ExecutedInsert(digest [32]byte) error
	ExecutedHas(digest [32]byte) bool
	OutboundNonceNext() (uint64, error)
}

// Engine implements the relayed message protocol: a validator registry, a
// threshold check over recovered signer identities, and exactly-once message
// execution guarded by the executed-digest set.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	chains   *policy.ChainSet
	admin    [20]byte
	emitter  events.Emitter
	nowFn    func() int64
	pauses   nativecommon.PauseView
	handlers map[string]Handler
}

// NewEngine constructs a bridge engine with no admin and a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		handlers: make(map[string]Handler),
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetChainSet configures the recognised chain registry.
func (e *Engine) SetChainSet(chains *policy.ChainSet) { e.chains = chains }

// SetAdmin configures the operator address allowed to mutate the registry and
// the pause switch.
func (e *Engine) SetAdmin(admin [20]byte) { e.admin = admin }

// SetPauses wires the admin pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RegisterHandler binds a target name to its consumer callback. Handlers must
// be registered before the node starts accepting ExecuteMessage calls.
func (e *Engine) RegisterHandler(target string, handler Handler) error {
	if target == "" {
		return fmt.Errorf("bridge: handler target required")
	}
	if handler == nil {
		return fmt.Errorf("bridge: handler required for target %q", target)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string]Handler)
	}
	if _, exists := e.handlers[target]; exists {
		return fmt.Errorf("bridge: handler for target %q already registered", target)
	}
	e.handlers[target] = handler
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e.admin == ([20]byte{}) || caller != e.admin {
		return fmt.Errorf("%w: caller %x is not the bridge admin", ErrUnauthorized, caller)
	}
	return nil
}

// config loads the stored policy. Callers hold e.mu.
func (e *Engine) config() (*Config, error) {
	cfg, ok := e.state.BridgeConfigGet()
	if !ok {
		return nil, errNilConfig
	}
	return cfg, nil
}

// SetConfig installs the bridge policy. Admin-gated once an admin is set;
// during node bootstrap the zero admin allows the initial install.
func (e *Engine) SetConfig(caller [20]byte, cfg *Config) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.admin != ([20]byte{}) {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.BridgeConfigPut(cfg.Clone())
}

// guard rejects mutations while either the module pause or the bridge's own
// kill switch is engaged. Callers hold e.mu.
func (e *Engine) guard(cfg *Config) error {
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleBridge); err != nil {
		return err
	}
	if cfg.Paused {
		return ErrPaused
	}
	return nil
}

// RegisterValidator adds an active validator with the supplied stake.
func (e *Engine) RegisterValidator(caller, addr [20]byte, stake *big.Int) (*ValidatorInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if stake == nil || stake.Cmp(cfg.MinStake) < 0 {
		return nil, fmt.Errorf("%w: offered %v, minimum %v", ErrStakeTooLow, stake, cfg.MinStake)
	}
	if existing, ok := e.state.ValidatorGet(addr); ok && existing != nil {
		return nil, fmt.Errorf("%w: %x", ErrValidatorExists, addr)
	}
	now := e.now()
	validator := &ValidatorInfo{
		Addr:     addr,
		Stake:    new(big.Int).Set(stake),
		Active:   true,
		JoinedAt: now,
		LastSeen: now,
	}
	if err := e.state.ValidatorPut(validator); err != nil {
		return nil, err
	}
	e.emit(NewValidatorRegisteredEvent(validator))
	return validator.Clone(), nil
}

// RemoveValidator deactivates a validator. The entry is retained for audit,
// recoverable stake bookkeeping stays with the registry.
func (e *Engine) RemoveValidator(caller, addr [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	validator, ok := e.state.ValidatorGet(addr)
	if !ok {
		return fmt.Errorf("%w: %x", ErrValidatorUnknown, addr)
	}
	if !validator.Active {
		return nil
	}
	validator.Active = false
	if err := e.state.ValidatorPut(validator); err != nil {
		return err
	}
	e.emit(NewValidatorRemovedEvent(validator))
	return nil
}

// SlashValidator reduces the validator's stake by the configured slash amount,
// never below zero, and deactivates the validator if the remaining stake falls
// under the policy minimum.
func (e *Engine) SlashValidator(caller, addr [20]byte) (*ValidatorInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	validator, ok := e.state.ValidatorGet(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrValidatorUnknown, addr)
	}
	validator.Stake.Sub(validator.Stake, cfg.SlashAmount)
	if validator.Stake.Sign() < 0 {
		validator.Stake.SetInt64(0)
	}
	validator.SlashCount++
	if validator.Stake.Cmp(cfg.MinStake) < 0 {
		validator.Active = false
	}
	if err := e.state.ValidatorPut(validator); err != nil {
		return nil, err
	}
	e.emit(NewValidatorSlashedEvent(validator))
	return validator.Clone(), nil
}

// Heartbeat records a liveness ping from the validator itself.
func (e *Engine) Heartbeat(caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	validator, ok := e.state.ValidatorGet(caller)
	if !ok {
		return fmt.Errorf("%w: %x", ErrValidatorUnknown, caller)
	}
	validator.LastSeen = e.now()
	return e.state.ValidatorPut(validator)
}

// VerifyThreshold recovers a signer identity from each 65-byte signature over
// the digest and counts it only if that identity is an active validator not
// already counted for this call. Malformed signatures and unknown or inactive
// signers are skipped, never fatal. Returns whether the distinct count meets
// the configured threshold, and the count itself.
func (e *Engine) VerifyThreshold(digest [32]byte, signatures [][]byte) (bool, int, error) {
	if err := e.ready(); err != nil {
		return false, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.config()
	if err != nil {
		return false, 0, err
	}
	count := e.countSigners(digest, signatures)
	return count >= int(cfg.RequiredSignatures), count, nil
}

// countSigners implements the duplicate-suppressed recovery loop. Callers hold
// e.mu.
func (e *Engine) countSigners(digest [32]byte, signatures [][]byte) int {
	seen := make(map[[20]byte]struct{}, len(signatures))
	for _, sig := range signatures {
		if len(sig) != 65 {
			continue
		}
		pubKey, err := ethcrypto.SigToPub(digest[:], sig)
		if err != nil {
			continue
		}
		var signer [20]byte
		copy(signer[:], ethcrypto.PubkeyToAddress(*pubKey).Bytes())
		if _, dup := seen[signer]; dup {
			continue
		}
		validator, ok := e.state.ValidatorGet(signer)
		if !ok || !validator.Active {
			continue
		}
		seen[signer] = struct{}{}
	}
	return len(seen)
}

// ExecuteMessage verifies and executes a relayed message exactly once. The
// digest is recomputed from the message body, never trusted from the caller,
// and is inserted into the executed set before the target handler runs so a
// re-entrant handler cannot execute the same message twice. A failing handler
// does not release the digest.
func (e *Engine) ExecuteMessage(msg *Message, signatures [][]byte) ([32]byte, error) {
	var zero [32]byte
	if err := e.ready(); err != nil {
		return zero, err
	}
	normalized, digest, handler, err := e.admitMessage(msg, signatures)
	if err != nil {
		return zero, err
	}
	// The handler runs outside the engine lock: a consumer re-entering a
	// bridge mutation observes the already-burned digest (ErrAlreadyExecuted)
	// instead of deadlocking.
	if err := handler(normalized.Clone()); err != nil {
		e.emit(NewMessageExecutedEvent(normalized, digest, false))
		return digest, fmt.Errorf("%w: target %q: %v", ErrTargetCallFailed, normalized.Target, err)
	}
	e.emit(NewMessageExecutedEvent(normalized, digest, true))
	return digest, nil
}

// admitMessage performs every check short of the handler call and burns the
// digest, all under the engine lock. Unknown targets are rejected before the
// insert so they never consume a digest.
func (e *Engine) admitMessage(msg *Message, signatures [][]byte) (*Message, [32]byte, Handler, error) {
	var zero [32]byte
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.config()
	if err != nil {
		return nil, zero, nil, err
	}
	if err := e.guard(cfg); err != nil {
		return nil, zero, nil, err
	}
	normalized, err := msg.normalize()
	if err != nil {
		return nil, zero, nil, err
	}
	digest, err := normalized.Digest()
	if err != nil {
		return nil, zero, nil, err
	}
	if e.state.ExecutedHas(digest) {
		return nil, zero, nil, fmt.Errorf("%w: digest %x", ErrAlreadyExecuted, digest)
	}
	now := e.now()
	if now > normalized.Timestamp+cfg.MessageTimeout {
		return nil, zero, nil, fmt.Errorf("%w: sent %d, now %d, timeout %ds", ErrMessageExpired, normalized.Timestamp, now, cfg.MessageTimeout)
	}
	count := e.countSigners(digest, signatures)
	if count < int(cfg.RequiredSignatures) {
		return nil, zero, nil, fmt.Errorf("%w: %d distinct of %d required", ErrInsufficientSignatures, count, cfg.RequiredSignatures)
	}
	handler, ok := e.handlers[normalized.Target]
	if !ok {
		return nil, zero, nil, fmt.Errorf("%w: %q", ErrUnknownTarget, normalized.Target)
	}
	if err := e.state.ExecutedInsert(digest); err != nil {
		return nil, zero, nil, err
	}
	return normalized, digest, handler, nil
}

// SendMessage assembles an outbound message to a registered remote chain,
// assigning the next outbound nonce and the current timestamp. Validators
// observe the emitted event, sign the digest off-process, and relayers submit
// the signed message to the target chain.
func (e *Engine) SendMessage(sender [20]byte, targetChainRef, target string, payload []byte) (*Message, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.chains == nil {
		return nil, errNilChains
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if err := e.guard(cfg); err != nil {
		return nil, err
	}
	if err := e.chains.ValidateRemote(targetChainRef); err != nil {
		return nil, err
	}
	if target == "" {
		return nil, fmt.Errorf("%w: target required", ErrInvalidMessage)
	}
	nonce, err := e.state.OutboundNonceNext()
	if err != nil {
		return nil, err
	}
	msg := &Message{
		SourceChainRef: e.chains.LocalRef(),
		TargetChainRef: policy.NormalizeChainRef(targetChainRef),
		Sender:         sender,
		Target:         target,
		Payload:        append([]byte(nil), payload...),
		Nonce:          nonce,
		Timestamp:      e.now(),
	}
	digest, err := msg.Digest()
	if err != nil {
		return nil, err
	}
	e.emit(NewMessageSentEvent(msg, digest))
	return msg, nil
}

// Pause engages the bridge-wide kill switch.
func (e *Engine) Pause(caller [20]byte) error { return e.setPaused(caller, true) }

// Unpause releases the kill switch.
func (e *Engine) Unpause(caller [20]byte) error { return e.setPaused(caller, false) }

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if cfg.Paused == paused {
		return nil
	}
	cfg.Paused = paused
	if err := e.state.BridgeConfigPut(cfg); err != nil {
		return err
	}
	if paused {
		e.emit(NewBridgePausedEvent(caller))
	} else {
		e.emit(NewBridgeUnpausedEvent(caller))
	}
	return nil
}

// Validator returns the registry entry for an address.
func (e *Engine) Validator(addr [20]byte) (*ValidatorInfo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	validator, ok := e.state.ValidatorGet(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrValidatorUnknown, addr)
	}
	return validator.Clone(), nil
}

// Validators enumerates the full registry, active and inactive alike.
func (e *Engine) Validators() ([]*ValidatorInfo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addrs, err := e.state.ValidatorAddresses()
	if err != nil {
		return nil, err
	}
	out := make([]*ValidatorInfo, 0, len(addrs))
	for _, addr := range addrs {
		validator, ok := e.state.ValidatorGet(addr)
		if !ok {
			continue
		}
		out = append(out, validator.Clone())
	}
	return out, nil
}

// ConfigSnapshot returns the current bridge policy.
func (e *Engine) ConfigSnapshot() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok := e.state.BridgeConfigGet()
	if !ok {
		return nil, errNilConfig
	}
	return cfg.Clone(), nil
}

// IsExecuted reports whether a digest is in the executed set.
func (e *Engine) IsExecuted(digest [32]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.state.ExecutedHas(digest)
}
