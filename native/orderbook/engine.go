package orderbook

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"crosslock/core/events"
	"crosslock/core/types"
	nativecommon "crosslock/native/common"
	"crosslock/native/hashlock"
	"crosslock/native/htlc"
	"crosslock/native/policy"
)

var (
	errNilState  = errors.New("orderbook engine: state not configured")
	errNilLedger = errors.New("orderbook engine: htlc ledger not configured")
	errNilChains = errors.New("orderbook engine: chain set not configured")
)

// engineState is the persistence surface required by the matcher.
type engineState interface {
	OrderPut(*Order) error
	OrderGet(id [32]byte) (*Order, bool)
	OrderIndexAppend(maker [20]byte, id [32]byte) error
	NextOrderNonce(maker [20]byte) (uint64, error)
	ResolverPut(*Resolver) error
	ResolverGet(addr [20]byte) (*Resolver, bool)
	VaultCredit(from [20]byte, asset string, amt *big.Int) error
	VaultDebit(asset string, amt *big.Int, to [20]byte) error
}

// Engine turns one-sided swap intents into concrete ledger locks and tracks
// them through their lifecycle. It owns orders; ledger records it only
// creates and references. The destination-chain leg is the resolver's
// responsibility and appears here solely as a correlation reference.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	ledger  *htlc.Engine
	chains  *policy.ChainSet
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// NewEngine constructs a matcher bound to the supplied ledger engine.
func NewEngine(ledger *htlc.Engine) *Engine {
	return &Engine{
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetChainSet configures the recognised chain registry.
func (e *Engine) SetChainSet(chains *policy.ChainSet) { e.chains = chains }

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
	if e.ledger == nil {
		return errNilLedger
	}
	if e.chains == nil {
		return errNilChains
	}
	return nil
}

// CreateOrderInput bundles the parameters of a new swap intent.
type CreateOrderInput struct {
	Maker       [20]byte
	SrcAsset    string
	DstAsset    string
	SrcAmount   *big.Int
	DstAmount   *big.Int
	DstChainRef string
	Commitment  hashlock.Commitment
	Deadline    int64
	Taker       [20]byte // zero = any
}

// CreateOrder validates the intent, escrows the source amount, and persists
// the order in Pending state. Validation happens before any funds move.
func (e *Engine) CreateOrder(in CreateOrderInput) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleOrderbook); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	srcAsset, err := types.NormalizeAsset(in.SrcAsset)
	if err != nil {
		return nil, ErrInvalidAsset
	}
	dstAsset, err := types.NormalizeAsset(in.DstAsset)
	if err != nil {
		return nil, ErrInvalidAsset
	}
	if in.SrcAmount == nil || in.SrcAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: src amount", ErrInvalidAmount)
	}
	if in.DstAmount == nil || in.DstAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: dst amount", ErrInvalidAmount)
	}
	if in.Commitment.IsZero() {
		return nil, hashlock.ErrZeroCommitment
	}
	if err := e.chains.ValidateRemote(in.DstChainRef); err != nil {
		return nil, err
	}
	now := e.now()
	if in.Deadline <= now+policy.MinOrderWindow {
		return nil, fmt.Errorf("%w: deadline %d, earliest allowed %d", hashlock.ErrDeadlineTooSoon, in.Deadline, now+policy.MinOrderWindow+1)
	}
	nonce, err := e.state.NextOrderNonce(in.Maker)
	if err != nil {
		return nil, err
	}
	srcChain := e.chains.LocalRef()
	dstChain := policy.NormalizeChainRef(in.DstChainRef)
	id := ComputeOrderID(in.Maker, srcAsset, dstAsset, in.SrcAmount, in.DstAmount, srcChain, dstChain, in.Commitment, in.Deadline, nonce)
	if existing, ok := e.state.OrderGet(id); ok && existing.Status != OrderInvalid {
		return nil, fmt.Errorf("%w: id %x in state %s", ErrAlreadyExists, id, existing.Status)
	}
	if err := e.state.VaultCredit(in.Maker, srcAsset, in.SrcAmount); err != nil {
		return nil, err
	}
	order := &Order{
		ID:          id,
		Maker:       in.Maker,
		Taker:       in.Taker,
		SrcAsset:    srcAsset,
		DstAsset:    dstAsset,
		SrcAmount:   new(big.Int).Set(in.SrcAmount),
		DstAmount:   new(big.Int).Set(in.DstAmount),
		SrcChainRef: srcChain,
		DstChainRef: dstChain,
		Commitment:  in.Commitment,
		Deadline:    in.Deadline,
		Nonce:       nonce,
		CreatedAt:   now,
		Status:      OrderPending,
	}
	if err := e.state.OrderPut(order); err != nil {
		_ = e.state.VaultDebit(srcAsset, in.SrcAmount, in.Maker)
		return nil, err
	}
	if err := e.state.OrderIndexAppend(in.Maker, id); err != nil {
		return nil, err
	}
	e.emit(NewOrderCreatedEvent(order))
	return order.Clone(), nil
}

// RegisterResolver records the caller as a resolver for the supplied
// destination chains with a declared minimum fee.
func (e *Engine) RegisterResolver(caller [20]byte, chains []string, minFeeBps uint32) (*Resolver, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("orderbook: resolver must declare at least one chain")
	}
	normalized := make([]string, 0, len(chains))
	for _, ref := range chains {
		if err := e.chains.ValidateRemote(ref); err != nil {
			return nil, err
		}
		normalized = append(normalized, policy.NormalizeChainRef(ref))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	resolver := &Resolver{
		Addr:      caller,
		Chains:    normalized,
		MinFeeBps: minFeeBps,
		Active:    true,
		AddedAt:   e.now(),
	}
	if err := e.state.ResolverPut(resolver); err != nil {
		return nil, err
	}
	e.emit(NewResolverRegisteredEvent(resolver))
	return resolver.Clone(), nil
}

// DeactivateResolver flags the caller's own registration inactive.
func (e *Engine) DeactivateResolver(caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	resolver, ok := e.state.ResolverGet(caller)
	if !ok {
		return fmt.Errorf("%w: %x", ErrResolverUnknown, caller)
	}
	if !resolver.Active {
		return nil
	}
	resolver.Active = false
	return e.state.ResolverPut(resolver)
}

// TakeOrder matches a Pending order: the caller must be an eligible resolver,
// and the order's escrow atomically becomes a ledger lock on the source chain
// with a chain-pair-aware timelock. The mirrored destination leg is created
// off-chain by the resolver, never here.
func (e *Engine) TakeOrder(orderID [32]byte, caller [20]byte, declaredFeeBps uint32) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleOrderbook); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.state.OrderGet(orderID)
	if !ok || order.Status == OrderInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, orderID)
	}
	if order.Status != OrderPending {
		return nil, fmt.Errorf("%w: order %x is %s, want %s", ErrInvalidState, orderID, order.Status, OrderPending)
	}
	now := e.now()
	if now >= order.Deadline {
		return nil, fmt.Errorf("%w: now %d, deadline %d", ErrOrderExpired, now, order.Deadline)
	}
	if !order.OpenToAnyTaker() && order.Taker != caller {
		return nil, fmt.Errorf("%w: caller %x, taker %x", ErrTakerMismatch, caller, order.Taker)
	}
	resolver, ok := e.state.ResolverGet(caller)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrResolverUnknown, caller)
	}
	if !resolver.Active {
		return nil, fmt.Errorf("%w: %x", ErrResolverInactive, caller)
	}
	if !resolver.SupportsChain(order.DstChainRef) {
		return nil, fmt.Errorf("%w: %s", ErrResolverChain, order.DstChainRef)
	}
	if declaredFeeBps < resolver.MinFeeBps {
		return nil, fmt.Errorf("%w: declared %d, minimum %d", ErrResolverFeeTooLow, declaredFeeBps, resolver.MinFeeBps)
	}
	timelocks, err := e.chains.ComputeTimelocks(order.SrcChainRef, order.DstChainRef)
	if err != nil {
		return nil, err
	}
	// The escrow briefly returns to the maker's account and is immediately
	// re-locked under the order's commitment. Both steps run inside this
	// engine transaction.
	if err := e.state.VaultDebit(order.SrcAsset, order.SrcAmount, order.Maker); err != nil {
		return nil, err
	}
	record, err := e.ledger.Lock(htlc.LockInput{
		Sender:          order.Maker,
		Recipient:       caller,
		Asset:           order.SrcAsset,
		Amount:          order.SrcAmount,
		Commitment:      order.Commitment,
		Deadline:        now + timelocks.SourceWindow,
		CounterpartyRef: order.ID,
	})
	if err != nil {
		_ = e.state.VaultCredit(order.Maker, order.SrcAsset, order.SrcAmount)
		return nil, err
	}
	order.Status = OrderMatched
	order.HTLCRef = record.ID
	order.Resolver = caller
	order.MatchedAt = now
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewOrderMatchedEvent(order))
	return order.Clone(), nil
}

// CompleteOrder settles a Matched order by presenting the secret. The ledger
// withdrawal (and its authorization and deadline checks) is propagated
// verbatim; on success the order reaches its only legal exit from Matched.
func (e *Engine) CompleteOrder(orderID [32]byte, secret []byte, caller [20]byte) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleOrderbook); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.state.OrderGet(orderID)
	if !ok || order.Status == OrderInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, orderID)
	}
	if order.Status != OrderMatched {
		return nil, fmt.Errorf("%w: order %x is %s, want %s", ErrInvalidState, orderID, order.Status, OrderMatched)
	}
	if !hashlock.Verify(secret, order.Commitment) {
		return nil, fmt.Errorf("%w: commitment %x", ErrBadSecret, order.Commitment)
	}
	if _, err := e.ledger.Withdraw(order.HTLCRef, secret, caller); err != nil {
		return nil, err
	}
	order.Status = OrderCompleted
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewOrderCompletedEvent(order))
	return order.Clone(), nil
}

// CancelOrder is the maker's voluntary early exit, legal only while the order
// is still Pending.
func (e *Engine) CancelOrder(orderID [32]byte, caller [20]byte) (*Order, error) {
	return e.releasePending(orderID, OrderCancelled, func(order *Order) error {
		if caller != order.Maker {
			return fmt.Errorf("%w: caller %x, maker %x", ErrUnauthorized, caller, order.Maker)
		}
		return nil
	})
}

// ExpireOrder is the permissionless cleanup path for a Pending order whose
// deadline has passed, so an inactive maker cannot strand funds.
func (e *Engine) ExpireOrder(orderID [32]byte) (*Order, error) {
	return e.releasePending(orderID, OrderExpired, func(order *Order) error {
		now := e.now()
		if now < order.Deadline {
			return fmt.Errorf("%w: now %d, deadline %d", ErrOrderNotExpired, now, order.Deadline)
		}
		return nil
	})
}

func (e *Engine) releasePending(orderID [32]byte, terminal OrderStatus, gate func(*Order) error) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleOrderbook); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.state.OrderGet(orderID)
	if !ok || order.Status == OrderInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, orderID)
	}
	if order.Status != OrderPending {
		return nil, fmt.Errorf("%w: order %x is %s, want %s", ErrInvalidState, orderID, order.Status, OrderPending)
	}
	if err := gate(order); err != nil {
		return nil, err
	}
	order.Status = terminal
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	if err := e.state.VaultDebit(order.SrcAsset, order.SrcAmount, order.Maker); err != nil {
		return nil, fmt.Errorf("orderbook: escrow release %x: %w", orderID, err)
	}
	switch terminal {
	case OrderCancelled:
		e.emit(NewOrderCancelledEvent(order))
	case OrderExpired:
		e.emit(NewOrderExpiredEvent(order))
	}
	return order.Clone(), nil
}

// FlagDisputed marks a Matched order whose backing lock was refunded (the
// taker never completed and the source leg timed out). Permissionless; the
// funds themselves already travelled back through the ledger's refund path,
// this transition records the failed fill.
func (e *Engine) FlagDisputed(orderID [32]byte) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.state.OrderGet(orderID)
	if !ok || order.Status == OrderInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, orderID)
	}
	if order.Status != OrderMatched {
		return nil, fmt.Errorf("%w: order %x is %s, want %s", ErrInvalidState, orderID, order.Status, OrderMatched)
	}
	if e.ledger.StatusOf(order.HTLCRef) != htlc.StatusRefunded {
		return nil, fmt.Errorf("%w: htlc %x is %s", ErrHTLCNotRefunded, order.HTLCRef, e.ledger.StatusOf(order.HTLCRef))
	}
	order.Status = OrderDisputed
	if err := e.state.OrderPut(order); err != nil {
		return nil, err
	}
	e.emit(NewOrderDisputedEvent(order))
	return order.Clone(), nil
}

// Get returns the order for an id.
func (e *Engine) Get(orderID [32]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok := e.state.OrderGet(orderID)
	if !ok || order.Status == OrderInvalid {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, orderID)
	}
	return order.Clone(), nil
}

// StatusOf returns the lifecycle state for an id; unknown ids report
// OrderInvalid.
func (e *Engine) StatusOf(orderID [32]byte) OrderStatus {
	if e == nil || e.state == nil {
		return OrderInvalid
	}
	order, ok := e.state.OrderGet(orderID)
	if !ok {
		return OrderInvalid
	}
	return order.Status
}

// ResolverInfo returns the registry entry for an address.
func (e *Engine) ResolverInfo(addr [20]byte) (*Resolver, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	resolver, ok := e.state.ResolverGet(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrResolverUnknown, addr)
	}
	return resolver.Clone(), nil
}
