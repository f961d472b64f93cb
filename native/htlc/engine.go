package htlc

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"crosslock/core/events"
	"crosslock/core/types"
	nativecommon "crosslock/native/common"
	"crosslock/native/hashlock"
	"crosslock/native/policy"
)

var errNilState = errors.New("htlc engine: state not configured")

// engineState is the narrow persistence surface the ledger requires. The
// state manager implements it; tests provide an in-memory mock.
type engineState interface {
	HTLCPut(*Record) error
	HTLCGet(id [32]byte) (*Record, bool)
	HTLCIndexAppend(owner [20]byte, id [32]byte) error
	AccountBalance(addr [20]byte, asset string) (*big.Int, error)
	VaultCredit(from [20]byte, asset string, amt *big.Int) error
	VaultDebit(asset string, amt *big.Int, to [20]byte) error
}

// Engine enforces the hashlock/timelock state machine over locked value.
// Every exported mutation runs under one mutex: racing calls against the same
// record are serialised, the loser observes the already-flipped state and
// receives a typed error.
type Engine struct {
	mu           sync.Mutex
	state        engineState
	emitter      events.Emitter
	feeCollector [20]byte
	feeBps       uint32
	originChain  string
	nowFn        func() int64
	pauses       nativecommon.PauseView
}

// NewEngine creates a ledger engine with a no-op emitter and zero fee.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFeePolicy configures the protocol fee and its collection account.
func (e *Engine) SetFeePolicy(collector [20]byte, bps uint32) error {
	if bps > policy.MaxFeeBps {
		return fmt.Errorf("%w: %d", policy.ErrFeeBpsTooHigh, bps)
	}
	e.feeCollector = collector
	e.feeBps = bps
	return nil
}

// SetOriginChain records the local chain reference stamped on new records.
func (e *Engine) SetOriginChain(ref string) { e.originChain = policy.NormalizeChainRef(ref) }

// SetPauses wires the admin pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
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

// LockInput bundles the parameters of a single lock request.
type LockInput struct {
	Sender          [20]byte
	Recipient       [20]byte
	Asset           string
	Amount          *big.Int
	Commitment      hashlock.Commitment
	Deadline        int64
	CounterpartyRef [32]byte
}

func (e *Engine) validateLock(in LockInput, now int64) (string, error) {
	if in.Recipient == ([20]byte{}) {
		return "", ErrZeroRecipient
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return "", ErrInvalidAmount
	}
	if in.Commitment.IsZero() {
		return "", hashlock.ErrZeroCommitment
	}
	asset, err := types.NormalizeAsset(in.Asset)
	if err != nil {
		return "", ErrInvalidAsset
	}
	if err := hashlock.ValidateDeadline(in.Deadline, now, policy.MinTimelock, policy.MaxTimelock); err != nil {
		return "", err
	}
	return asset, nil
}

// Lock escrows value against a commitment and deadline and returns the new
// record. The id is deterministic; locking twice with identical parameters
// fails with ErrAlreadyExists.
func (e *Engine) Lock(in LockInput) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleHTLC); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lockLocked(in)
}

func (e *Engine) lockLocked(in LockInput) (*Record, error) {
	now := e.now()
	asset, err := e.validateLock(in, now)
	if err != nil {
		return nil, err
	}
	id := ComputeID(in.Sender, in.Recipient, asset, in.Amount, in.Commitment, in.Deadline)
	if existing, ok := e.state.HTLCGet(id); ok && existing.Status != StatusInvalid {
		return nil, fmt.Errorf("%w: id %x in state %s", ErrAlreadyExists, id, existing.Status)
	}
	split, err := policy.ApplyFee(policy.FeeInput{Gross: in.Amount, FeeBps: e.feeBps})
	if err != nil {
		return nil, err
	}
	if err := e.state.VaultCredit(in.Sender, asset, in.Amount); err != nil {
		return nil, err
	}
	if split.Fee.Sign() > 0 {
		if err := e.state.VaultDebit(asset, split.Fee, e.feeCollector); err != nil {
			_ = e.state.VaultDebit(asset, in.Amount, in.Sender)
			return nil, err
		}
	}
	record := &Record{
		ID:              id,
		Sender:          in.Sender,
		Recipient:       in.Recipient,
		Asset:           asset,
		Amount:          split.Net,
		GrossAmount:     new(big.Int).Set(in.Amount),
		Fee:             split.Fee,
		Commitment:      in.Commitment,
		Deadline:        in.Deadline,
		CreatedAt:       now,
		OriginChainRef:  e.originChain,
		CounterpartyRef: in.CounterpartyRef,
		Status:          StatusActive,
	}
	if err := e.state.HTLCPut(record); err != nil {
		_ = e.state.VaultDebit(asset, split.Net, in.Sender)
		return nil, err
	}
	// The index is denormalized enumeration bookkeeping; authorization never
	// consults it. The lock committed above, so an append failure must not
	// turn a successful lock into a caller-visible error.
	if err := e.state.HTLCIndexAppend(in.Sender, id); err != nil {
		slog.Warn("htlc index append failed", "owner", fmt.Sprintf("%x", in.Sender), "id", fmt.Sprintf("%x", id), "error", err)
	}
	if err := e.state.HTLCIndexAppend(in.Recipient, id); err != nil {
		slog.Warn("htlc index append failed", "owner", fmt.Sprintf("%x", in.Recipient), "id", fmt.Sprintf("%x", id), "error", err)
	}
	e.emit(NewLockedEvent(record))
	return record.Clone(), nil
}

// LockBatch locks every item or none. All items are validated, including
// aggregate balance sufficiency per sender and asset, before any state is
// touched.
func (e *Engine) LockBatch(items []LockInput) ([]*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleHTLC); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	type fundKey struct {
		sender [20]byte
		asset  string
	}
	needed := make(map[fundKey]*big.Int)
	seen := make(map[[32]byte]struct{}, len(items))
	for i, in := range items {
		asset, err := e.validateLock(in, now)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		id := ComputeID(in.Sender, in.Recipient, asset, in.Amount, in.Commitment, in.Deadline)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("batch item %d: %w: %x", i, ErrDuplicateInBatch, id)
		}
		seen[id] = struct{}{}
		if existing, ok := e.state.HTLCGet(id); ok && existing.Status != StatusInvalid {
			return nil, fmt.Errorf("batch item %d: %w: %x", i, ErrAlreadyExists, id)
		}
		key := fundKey{sender: in.Sender, asset: asset}
		if needed[key] == nil {
			needed[key] = big.NewInt(0)
		}
		needed[key].Add(needed[key], in.Amount)
	}
	for key, total := range needed {
		balance, err := e.state.AccountBalance(key.sender, key.asset)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(total) < 0 {
			return nil, fmt.Errorf("%w: need %s %s, have %s", ErrInsufficientFunds, total, key.asset, balance)
		}
	}
	records := make([]*Record, 0, len(items))
	for i, in := range items {
		record, err := e.lockLocked(in)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Withdraw releases the locked value to the recipient on secret reveal. The
// record flips to its terminal state before the transfer is attempted so a
// transfer callback can never re-enter and double-spend this record; the
// revealed secret is stored for cross-chain pickup.
func (e *Engine) Withdraw(id [32]byte, secret []byte, caller [20]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleHTLC); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	record, ok := e.state.HTLCGet(id)
	if !ok || record.Status == StatusInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
	}
	if record.Status != StatusActive {
		return nil, fmt.Errorf("%w: id %x is %s, want %s", ErrInvalidState, id, record.Status, StatusActive)
	}
	if caller != record.Recipient {
		return nil, fmt.Errorf("%w: caller %x, recipient %x", ErrUnauthorized, caller, record.Recipient)
	}
	if !hashlock.Verify(secret, record.Commitment) {
		return nil, fmt.Errorf("%w: commitment %x", ErrBadSecret, record.Commitment)
	}
	now := e.now()
	if now >= record.Deadline {
		return nil, fmt.Errorf("%w: now %d, deadline %d", ErrExpired, now, record.Deadline)
	}
	record.Status = StatusWithdrawn
	record.Secret = append([]byte(nil), secret...)
	if err := e.state.HTLCPut(record); err != nil {
		return nil, err
	}
	if err := e.state.VaultDebit(record.Asset, record.Amount, record.Recipient); err != nil {
		return nil, fmt.Errorf("%w: %x: %v", ErrTransferFailed, id, err)
	}
	e.emit(NewWithdrawnEvent(record))
	return record.Clone(), nil
}

// Refund returns the locked value to the sender once the deadline has passed.
// Same transfer-last discipline as Withdraw.
func (e *Engine) Refund(id [32]byte, caller [20]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleHTLC); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	record, ok := e.state.HTLCGet(id)
	if !ok || record.Status == StatusInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
	}
	if record.Status != StatusActive {
		return nil, fmt.Errorf("%w: id %x is %s, want %s", ErrInvalidState, id, record.Status, StatusActive)
	}
	if caller != record.Sender {
		return nil, fmt.Errorf("%w: caller %x, sender %x", ErrUnauthorized, caller, record.Sender)
	}
	now := e.now()
	if now < record.Deadline {
		return nil, fmt.Errorf("%w: now %d, deadline %d", ErrNotYetExpired, now, record.Deadline)
	}
	record.Status = StatusRefunded
	if err := e.state.HTLCPut(record); err != nil {
		return nil, err
	}
	if err := e.state.VaultDebit(record.Asset, record.Amount, record.Sender); err != nil {
		return nil, fmt.Errorf("%w: %x: %v", ErrTransferFailed, id, err)
	}
	e.emit(NewRefundedEvent(record))
	return record.Clone(), nil
}

// Get returns the full record for an id.
func (e *Engine) Get(id [32]byte) (*Record, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok := e.state.HTLCGet(id)
	if !ok || record.Status == StatusInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
	}
	return record.Clone(), nil
}

// StatusOf returns the lifecycle state for an id. Unknown ids report
// StatusInvalid rather than an error.
func (e *Engine) StatusOf(id [32]byte) Status {
	if e == nil || e.state == nil {
		return StatusInvalid
	}
	record, ok := e.state.HTLCGet(id)
	if !ok {
		return StatusInvalid
	}
	return record.Status
}

// IsActive reports whether the record exists and has not reached a terminal
// state.
func (e *Engine) IsActive(id [32]byte) bool {
	return e.StatusOf(id) == StatusActive
}

// IsExpired reports whether the record's refund window is open.
func (e *Engine) IsExpired(id [32]byte) (bool, error) {
	record, err := e.Get(id)
	if err != nil {
		return false, err
	}
	return e.now() >= record.Deadline, nil
}

// RevealedSecret returns the secret stored by a successful withdraw. The
// counterparty leg unlocks with it; permanence is intentional.
func (e *Engine) RevealedSecret(id [32]byte) ([]byte, error) {
	record, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusWithdrawn {
		return nil, fmt.Errorf("%w: id %x is %s, want %s", ErrInvalidState, id, record.Status, StatusWithdrawn)
	}
	return append([]byte(nil), record.Secret...), nil
}
