package orderbook

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"crosslock/crypto"
	"crosslock/native/bridge"
	"crosslock/native/htlc"
	"crosslock/native/policy"
)

func TestCompleteFromRelaySettles(t *testing.T) {
	f := newFixture(t)
	registerResolver(t, f)

	order, err := f.engine.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.TakeOrder(order.ID, resolver, 10); err != nil {
		t.Fatalf("take: %v", err)
	}

	payload, err := EncodeSecretRelay(order.ID, []byte("s1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	completed, err := f.engine.CompleteFromRelay(payload)
	if err != nil {
		t.Fatalf("complete from relay: %v", err)
	}
	if completed.Status != OrderCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if got := f.state.balance(resolver, "NATIVE").Int64(); got != 1_000_000 {
		t.Fatalf("resolver balance = %d, want 1000000", got)
	}
}

func TestSecretRelayPayloadValidation(t *testing.T) {
	if _, err := EncodeSecretRelay([32]byte{0x01}, nil); err == nil {
		t.Fatal("encode accepted empty secret")
	}
	if _, _, err := DecodeSecretRelay([]byte{0xff, 0x00, 0x01}); err == nil {
		t.Fatal("decode accepted garbage payload")
	}

	f := newFixture(t)
	payload, err := EncodeSecretRelay([32]byte{0xee}, []byte("s1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := f.engine.CompleteFromRelay(payload); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown order: got %v, want ErrNotFound", err)
	}
}

func TestSecretRelayRoundTrip(t *testing.T) {
	id := [32]byte{0x42, 0x43}
	payload, err := EncodeSecretRelay(id, []byte("s-roundtrip"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	gotID, gotSecret, err := DecodeSecretRelay(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotID != id || !bytes.Equal(gotSecret, []byte("s-roundtrip")) {
		t.Fatalf("round trip mismatch: id %x secret %q", gotID, gotSecret)
	}
}

// relayState widens the shared matcher/ledger mock with the validator set and
// executed-digest bookkeeping the message engine needs, so a full inbound
// relay can run against real order state.
type relayState struct {
	*mockState
	validators map[[20]byte]*bridge.ValidatorInfo
	valOrder   [][20]byte
	bridgeCfg  *bridge.Config
	executed   map[[32]byte]struct{}
	outNonce   uint64
}

func newRelayState() *relayState {
	return &relayState{
		mockState:  newMockState(),
		validators: make(map[[20]byte]*bridge.ValidatorInfo),
		executed:   make(map[[32]byte]struct{}),
	}
}

func (m *relayState) ValidatorPut(v *bridge.ValidatorInfo) error {
	sanitized, err := bridge.SanitizeValidator(v)
	if err != nil {
		return err
	}
	if _, known := m.validators[sanitized.Addr]; !known {
		m.valOrder = append(m.valOrder, sanitized.Addr)
	}
	m.validators[sanitized.Addr] = sanitized.Clone()
	return nil
}

func (m *relayState) ValidatorGet(addr [20]byte) (*bridge.ValidatorInfo, bool) {
	v, ok := m.validators[addr]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

func (m *relayState) ValidatorAddresses() ([][20]byte, error) {
	return append([][20]byte(nil), m.valOrder...), nil
}

func (m *relayState) BridgeConfigPut(cfg *bridge.Config) error {
	m.bridgeCfg = cfg.Clone()
	return nil
}

func (m *relayState) BridgeConfigGet() (*bridge.Config, bool) {
	if m.bridgeCfg == nil {
		return nil, false
	}
	return m.bridgeCfg.Clone(), true
}

func (m *relayState) ExecutedInsert(digest [32]byte) error {
	m.executed[digest] = struct{}{}
	return nil
}

func (m *relayState) ExecutedHas(digest [32]byte) bool {
	_, ok := m.executed[digest]
	return ok
}

func (m *relayState) OutboundNonceNext() (uint64, error) {
	n := m.outNonce
	m.outNonce++
	return n, nil
}

// A signed inbound message addressed to the registered order-completion
// target must settle a matched order end to end. Previously nothing
// registered the consumer, so valid messages died on the unknown-target
// check.
func TestInboundRelaySettlesMatchedOrder(t *testing.T) {
	state := newRelayState()
	state.fund(maker, "NATIVE", 10_000_000)

	f := &fixture{state: state.mockState, nowUnix: testNow}

	ledger := htlc.NewEngine()
	ledger.SetState(state)
	ledger.SetOriginChain("clk-local")
	ledger.SetNowFunc(func() int64 { return f.nowUnix })
	f.ledger = ledger

	matcher := NewEngine(ledger)
	matcher.SetState(state)
	matcher.SetChainSet(relayChainSet(t))
	matcher.SetNowFunc(func() int64 { return f.nowUnix })
	f.engine = matcher
	registerResolver(t, f)

	order, err := matcher.CreateOrder(baseOrderInput(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := matcher.TakeOrder(order.ID, resolver, 10); err != nil {
		t.Fatalf("take: %v", err)
	}

	relay, keys := newRelayEngine(t, state, f)
	if err := relay.RegisterHandler(BridgeTargetOrderComplete, func(msg *bridge.Message) error {
		_, err := matcher.CompleteFromRelay(msg.Payload)
		return err
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	payload, err := EncodeSecretRelay(order.ID, []byte("s1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg := &bridge.Message{
		SourceChainRef: "eth-mainnet",
		TargetChainRef: "clk-local",
		Sender:         testAddr(0x44),
		Target:         BridgeTargetOrderComplete,
		Payload:        payload,
		Nonce:          1,
		Timestamp:      testNow - 60,
	}
	digest, err := msg.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sigs := make([][]byte, 0, len(keys))
	for _, key := range keys {
		sig, err := key.Sign(digest[:])
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		sigs = append(sigs, sig)
	}

	if _, err := relay.ExecuteMessage(msg, sigs); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := matcher.StatusOf(order.ID); got != OrderCompleted {
		t.Fatalf("order status = %s, want completed", got)
	}
	if got := state.balance(resolver, "NATIVE").Int64(); got != 1_000_000 {
		t.Fatalf("resolver balance = %d, want 1000000", got)
	}

	// A replay of the same digest is rejected, not re-applied.
	if _, err := relay.ExecuteMessage(msg, sigs); !errors.Is(err, bridge.ErrAlreadyExecuted) {
		t.Fatalf("replay: got %v, want ErrAlreadyExecuted", err)
	}
}

func relayChainSet(t *testing.T) *policy.ChainSet {
	t.Helper()
	chains, err := policy.NewChainSet("clk-local", []policy.ChainInfo{
		{Ref: "clk-local", ConfirmationBuffer: 600},
		{Ref: "eth-mainnet", ConfirmationBuffer: 900},
	})
	if err != nil {
		t.Fatalf("chain set: %v", err)
	}
	return chains
}

func newRelayEngine(t *testing.T, state *relayState, f *fixture) (*bridge.Engine, []*crypto.PrivateKey) {
	t.Helper()
	engine := bridge.NewEngine()
	engine.SetState(state)
	engine.SetChainSet(relayChainSet(t))
	engine.SetNowFunc(func() int64 { return f.nowUnix })
	admin := testAddr(0xAD)
	if err := engine.SetConfig([20]byte{}, &bridge.Config{
		RequiredSignatures: 3,
		MessageTimeout:     3600,
		MinStake:           big.NewInt(1_000),
		SlashAmount:        big.NewInt(600),
	}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	engine.SetAdmin(admin)

	keys := make([]*crypto.PrivateKey, 0, 3)
	for i := 0; i < 3; i++ {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		var addr [20]byte
		copy(addr[:], key.PubKey().Address().Bytes())
		if _, err := engine.RegisterValidator(admin, addr, big.NewInt(1_000)); err != nil {
			t.Fatalf("register validator %d: %v", i, err)
		}
		keys = append(keys, key)
	}
	return engine, keys
}
