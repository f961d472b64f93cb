package orderbook

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"crosslock/native/hashlock"
	"crosslock/native/htlc"
	"crosslock/native/policy"
)

// mockState backs both the matcher and the ledger engine so escrow moves are
// visible across the two, mirroring the shared state manager in the node.
type mockState struct {
	orders    map[[32]byte]*Order
	index     map[[20]byte][][32]byte
	nonces    map[[20]byte]uint64
	resolvers map[[20]byte]*Resolver
	records   map[[32]byte]*htlc.Record
	htlcIndex map[[20]byte][][32]byte
	balances  map[[20]byte]map[string]*big.Int
	vault     map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		orders:    make(map[[32]byte]*Order),
		index:     make(map[[20]byte][][32]byte),
		nonces:    make(map[[20]byte]uint64),
		resolvers: make(map[[20]byte]*Resolver),
		records:   make(map[[32]byte]*htlc.Record),
		htlcIndex: make(map[[20]byte][][32]byte),
		balances:  make(map[[20]byte]map[string]*big.Int),
		vault:     make(map[string]*big.Int),
	}
}

func (m *mockState) fund(addr [20]byte, asset string, amount int64) {
	if m.balances[addr] == nil {
		m.balances[addr] = make(map[string]*big.Int)
	}
	m.balances[addr][asset] = big.NewInt(amount)
}

func (m *mockState) balance(addr [20]byte, asset string) *big.Int {
	if m.balances[addr] == nil || m.balances[addr][asset] == nil {
		return big.NewInt(0)
	}
	return m.balances[addr][asset]
}

func (m *mockState) OrderPut(o *Order) error {
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return err
	}
	m.orders[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) OrderGet(id [32]byte) (*Order, bool) {
	order, ok := m.orders[id]
	if !ok {
		return nil, false
	}
	return order.Clone(), true
}

func (m *mockState) OrderIndexAppend(maker [20]byte, id [32]byte) error {
	m.index[maker] = append(m.index[maker], id)
	return nil
}

func (m *mockState) NextOrderNonce(maker [20]byte) (uint64, error) {
	nonce := m.nonces[maker]
	m.nonces[maker] = nonce + 1
	return nonce, nil
}

func (m *mockState) ResolverPut(r *Resolver) error {
	m.resolvers[r.Addr] = r.Clone()
	return nil
}

func (m *mockState) ResolverGet(addr [20]byte) (*Resolver, bool) {
	resolver, ok := m.resolvers[addr]
	if !ok {
		return nil, false
	}
	return resolver.Clone(), true
}

func (m *mockState) HTLCPut(r *htlc.Record) error {
	sanitized, err := htlc.SanitizeRecord(r)
	if err != nil {
		return err
	}
	m.records[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) HTLCGet(id [32]byte) (*htlc.Record, bool) {
	record, ok := m.records[id]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

func (m *mockState) HTLCIndexAppend(owner [20]byte, id [32]byte) error {
	m.htlcIndex[owner] = append(m.htlcIndex[owner], id)
	return nil
}

func (m *mockState) AccountBalance(addr [20]byte, asset string) (*big.Int, error) {
	return new(big.Int).Set(m.balance(addr, asset)), nil
}

func (m *mockState) VaultCredit(from [20]byte, asset string, amt *big.Int) error {
	bal := m.balance(from, asset)
	if bal.Cmp(amt) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	bal.Sub(bal, amt)
	if m.vault[asset] == nil {
		m.vault[asset] = big.NewInt(0)
	}
	m.vault[asset].Add(m.vault[asset], amt)
	return nil
}

func (m *mockState) VaultDebit(asset string, amt *big.Int, to [20]byte) error {
	if m.vault[asset] == nil || m.vault[asset].Cmp(amt) < 0 {
		return fmt.Errorf("vault underflow")
	}
	m.vault[asset].Sub(m.vault[asset], amt)
	if m.balances[to] == nil {
		m.balances[to] = make(map[string]*big.Int)
	}
	if m.balances[to][asset] == nil {
		m.balances[to][asset] = big.NewInt(0)
	}
	m.balances[to][asset].Add(m.balances[to][asset], amt)
	return nil
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

const testNow = int64(1_700_000_000)

var (
	maker    = testAddr(0x11)
	resolver = testAddr(0x22)
)

type fixture struct {
	state   *mockState
	ledger  *htlc.Engine
	engine  *Engine
	nowUnix int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := newMockState()
	state.fund(maker, "NATIVE", 10_000_000)

	chains, err := policy.NewChainSet("clk-local", []policy.ChainInfo{
		{Ref: "clk-local", ConfirmationBuffer: 600},
		{Ref: "eth-mainnet", ConfirmationBuffer: 900},
	})
	if err != nil {
		t.Fatalf("chain set: %v", err)
	}

	f := &fixture{state: state, nowUnix: testNow}

	ledger := htlc.NewEngine()
	ledger.SetState(state)
	ledger.SetOriginChain("clk-local")
	ledger.SetNowFunc(func() int64 { return f.nowUnix })
	f.ledger = ledger

	engine := NewEngine(ledger)
	engine.SetState(state)
	engine.SetChainSet(chains)
	engine.SetNowFunc(func() int64 { return f.nowUnix })
	f.engine = engine
	return f
}

func (f *fixture) advance(seconds int64) {
	f.nowUnix += seconds
}

func mustCommit(t *testing.T, secret string) hashlock.Commitment {
	t.Helper()
	commitment, err := hashlock.Commit([]byte(secret))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return commitment
}

func baseOrderInput(t *testing.T) CreateOrderInput {
	return CreateOrderInput{
		Maker:       maker,
		SrcAsset:    "native",
		DstAsset:    "usdc",
		SrcAmount:   big.NewInt(1_000_000),
		DstAmount:   big.NewInt(999_000),
		DstChainRef: "eth-mainnet",
		Commitment:  mustCommit(t, "s1"),
		Deadline:    testNow + 3*3600,
	}
}

func registerResolver(t *testing.T, f *fixture) {
	t.Helper()
	if _, err := f.engine.RegisterResolver(resolver, []string{"eth-mainnet"}, 10); err != nil {
		t.Fatalf("register resolver: %v", err)
	}
}

func TestCreateOrderEscrowsFunds(t *testing.T) {
	f := newFixture(t)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != OrderPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
	if got := f.state.balance(maker, "NATIVE").Int64(); got != 9_000_000 {
		t.Fatalf("maker balance = %d, want 9000000", got)
	}
	if order.SrcChainRef != "clk-local" {
		t.Fatalf("src chain = %s", order.SrcChainRef)
	}
}

func TestCreateOrderRejectsLocalDestination(t *testing.T) {
	f := newFixture(t)

	in := baseOrderInput(t)
	in.DstChainRef = "clk-local"
	if _, err := f.engine.CreateOrder(in); !errors.Is(err, policy.ErrSameChain) {
		t.Fatalf("got %v, want ErrSameChain", err)
	}
	// Validation precedes escrow: no funds moved.
	if got := f.state.balance(maker, "NATIVE").Int64(); got != 10_000_000 {
		t.Fatalf("maker balance = %d, funds moved on failed validation", got)
	}
}

func TestCreateOrderDeadlineWindow(t *testing.T) {
	f := newFixture(t)

	in := baseOrderInput(t)
	in.Deadline = testNow + 3600
	if _, err := f.engine.CreateOrder(in); !errors.Is(err, hashlock.ErrDeadlineTooSoon) {
		t.Fatalf("got %v, want ErrDeadlineTooSoon", err)
	}
}

func TestCreateOrderNonceDisambiguates(t *testing.T) {
	f := newFixture(t)

	first, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("identical intents must get distinct ids via the maker nonce")
	}
	if second.Nonce != first.Nonce+1 {
		t.Fatalf("nonce not monotonic: %d then %d", first.Nonce, second.Nonce)
	}
}

func TestTakeOrderCreatesLock(t *testing.T) {
	f := newFixture(t)
	registerResolver(t, f)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := f.engine.TakeOrder(order.ID, resolver, 10)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if matched.Status != OrderMatched {
		t.Fatalf("status = %s, want matched", matched.Status)
	}
	if matched.HTLCRef == ([32]byte{}) {
		t.Fatal("htlc reference not stored")
	}

	record, err := f.ledger.Get(matched.HTLCRef)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if record.Recipient != resolver || record.Sender != maker {
		t.Fatal("lock parties wrong")
	}
	if record.Commitment != matched.Commitment {
		t.Fatal("lock commitment differs from order commitment")
	}
	if record.CounterpartyRef != order.ID {
		t.Fatal("lock does not reference the order")
	}
	// Source window: dst(4h+900) + 1h stagger + src buffer 600.
	wantDeadline := f.nowUnix + policy.DefaultDestinationWindow + 900 + policy.SourceStagger + 600
	if record.Deadline != wantDeadline {
		t.Fatalf("lock deadline = %d, want %d", record.Deadline, wantDeadline)
	}
}

func TestTakeOrderRace(t *testing.T) {
	f := newFixture(t)
	registerResolver(t, f)
	other := testAddr(0x33)
	if _, err := f.engine.RegisterResolver(other, []string{"eth-mainnet"}, 0); err != nil {
		t.Fatalf("register second resolver: %v", err)
	}

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.TakeOrder(order.ID, resolver, 10); err != nil {
		t.Fatalf("first take: %v", err)
	}
	if _, err := f.engine.TakeOrder(order.ID, other, 10); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second take: got %v, want ErrInvalidState", err)
	}
}

func TestTakeOrderGates(t *testing.T) {
	f := newFixture(t)
	registerResolver(t, f)

	reserved := baseOrderInput(t)
	reserved.Taker = testAddr(0x99)
	order, err := f.engine.CreateOrder(reserved)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.TakeOrder(order.ID, resolver, 10); !errors.Is(err, ErrTakerMismatch) {
		t.Fatalf("reserved order: got %v, want ErrTakerMismatch", err)
	}

	open, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create open: %v", err)
	}
	if _, err := f.engine.TakeOrder(open.ID, testAddr(0x44), 10); !errors.Is(err, ErrResolverUnknown) {
		t.Fatalf("unregistered resolver: got %v, want ErrResolverUnknown", err)
	}
	if _, err := f.engine.TakeOrder(open.ID, resolver, 5); !errors.Is(err, ErrResolverFeeTooLow) {
		t.Fatalf("low fee: got %v, want ErrResolverFeeTooLow", err)
	}

	f.advance(4 * 3600)
	if _, err := f.engine.TakeOrder(open.ID, resolver, 10); !errors.Is(err, ErrOrderExpired) {
		t.Fatalf("expired order: got %v, want ErrOrderExpired", err)
	}
}

func TestCompleteOrderSettles(t *testing.T) {
	f := newFixture(t)
	registerResolver(t, f)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := f.engine.TakeOrder(order.ID, resolver, 10)
	if err != nil {
		t.Fatalf("take: %v", err)
	}

	if _, err := f.engine.CompleteOrder(matched.ID, []byte("wrong"), resolver); !errors.Is(err, ErrBadSecret) {
		t.Fatalf("wrong secret: got %v, want ErrBadSecret", err)
	}

	completed, err := f.engine.CompleteOrder(matched.ID, []byte("s1"), resolver)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != OrderCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if got := f.state.balance(resolver, "NATIVE").Int64(); got != 1_000_000 {
		t.Fatalf("resolver balance = %d, want 1000000", got)
	}
	// The revealed secret is retrievable for the counterparty leg.
	secret, err := f.ledger.RevealedSecret(matched.HTLCRef)
	if err != nil || string(secret) != "s1" {
		t.Fatalf("revealed secret %q, err %v", secret, err)
	}
}

func TestCompleteOrderPropagatesLedgerAuth(t *testing.T) {
	f := newFixture(t)
	registerResolver(t, f)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := f.engine.TakeOrder(order.ID, resolver, 10)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if _, err := f.engine.CompleteOrder(matched.ID, []byte("s1"), maker); !errors.Is(err, htlc.ErrUnauthorized) {
		t.Fatalf("got %v, want htlc.ErrUnauthorized", err)
	}
	if f.engine.StatusOf(matched.ID) != OrderMatched {
		t.Fatal("order left Matched state after failed completion")
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.CancelOrder(order.ID, testAddr(0x77)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign cancel: got %v, want ErrUnauthorized", err)
	}
	cancelled, err := f.engine.CancelOrder(order.ID, maker)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != OrderCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if got := f.state.balance(maker, "NATIVE").Int64(); got != 10_000_000 {
		t.Fatalf("maker balance = %d, escrow not returned", got)
	}
	// Terminal: expiry can no longer fire.
	f.advance(4 * 3600)
	if _, err := f.engine.ExpireOrder(order.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expire after cancel: got %v, want ErrInvalidState", err)
	}
}

func TestExpireOrderPermissionless(t *testing.T) {
	f := newFixture(t)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.ExpireOrder(order.ID); !errors.Is(err, ErrOrderNotExpired) {
		t.Fatalf("early expire: got %v, want ErrOrderNotExpired", err)
	}
	f.advance(3*3600 + 1)
	expired, err := f.engine.ExpireOrder(order.ID)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired.Status != OrderExpired {
		t.Fatalf("status = %s, want expired", expired.Status)
	}
	if got := f.state.balance(maker, "NATIVE").Int64(); got != 10_000_000 {
		t.Fatalf("maker balance = %d, escrow not returned", got)
	}
}

func TestFlagDisputedRequiresRefundedLock(t *testing.T) {
	f := newFixture(t)
	registerResolver(t, f)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	matched, err := f.engine.TakeOrder(order.ID, resolver, 10)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if _, err := f.engine.FlagDisputed(matched.ID); !errors.Is(err, ErrHTLCNotRefunded) {
		t.Fatalf("premature dispute: got %v, want ErrHTLCNotRefunded", err)
	}

	// Taker disappears; maker refunds the source leg after its timelock.
	record, err := f.ledger.Get(matched.HTLCRef)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	f.nowUnix = record.Deadline
	if _, err := f.ledger.Refund(matched.HTLCRef, maker); err != nil {
		t.Fatalf("refund: %v", err)
	}

	disputed, err := f.engine.FlagDisputed(matched.ID)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != OrderDisputed {
		t.Fatalf("status = %s, want disputed", disputed.Status)
	}
	if got := f.state.balance(maker, "NATIVE").Int64(); got != 10_000_000 {
		t.Fatalf("maker balance = %d after refund", got)
	}
}

func TestSingleTerminalState(t *testing.T) {
	f := newFixture(t)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.advance(3*3600 + 1)
	if _, err := f.engine.ExpireOrder(order.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if _, err := f.engine.CancelOrder(order.ID, maker); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel after expire: got %v, want ErrInvalidState", err)
	}
}
