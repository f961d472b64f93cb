package state

import (
	"errors"
	"math/big"
	"testing"

	"crosslock/core/types"
	"crosslock/native/bridge"
	"crosslock/native/hashlock"
	"crosslock/native/htlc"
	"crosslock/native/orderbook"
	"crosslock/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func id32(fill byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = fill
	}
	return id
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager()
	owner := addr(0x01)

	acc := &types.Account{Nonce: 3, Balances: map[string]*big.Int{
		"NATIVE": big.NewInt(500),
		"USDC":   big.NewInt(42),
		"AAA":    big.NewInt(0), // zero balances are not persisted
	}}
	if err := m.PutAccount(owner, acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := m.GetAccount(owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Nonce != 3 {
		t.Fatalf("nonce = %d", loaded.Nonce)
	}
	if loaded.Balance("NATIVE").Int64() != 500 || loaded.Balance("USDC").Int64() != 42 {
		t.Fatalf("balances = %v", loaded.Balances)
	}
	if _, ok := loaded.Balances["AAA"]; ok {
		t.Fatal("zero balance survived the round trip")
	}

	// Unknown accounts load empty, never error.
	empty, err := m.GetAccount(addr(0xff))
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if empty.Balance("NATIVE").Sign() != 0 {
		t.Fatal("unknown account not empty")
	}
}

func TestVaultTransfers(t *testing.T) {
	m := newTestManager()
	owner := addr(0x02)
	if err := m.Credit(owner, "native", big.NewInt(1_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if err := m.VaultCredit(owner, "NATIVE", big.NewInt(400)); err != nil {
		t.Fatalf("vault credit: %v", err)
	}
	balance, err := m.AccountBalance(owner, "NATIVE")
	if err != nil || balance.Int64() != 600 {
		t.Fatalf("balance = %v, err %v", balance, err)
	}
	vaultBalance, err := m.AccountBalance(VaultAddress(), "NATIVE")
	if err != nil || vaultBalance.Int64() != 400 {
		t.Fatalf("vault balance = %v, err %v", vaultBalance, err)
	}

	if err := m.VaultCredit(owner, "NATIVE", big.NewInt(700)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraft: got %v, want ErrInsufficientBalance", err)
	}

	other := addr(0x03)
	if err := m.VaultDebit("NATIVE", big.NewInt(400), other); err != nil {
		t.Fatalf("vault debit: %v", err)
	}
	otherBalance, err := m.AccountBalance(other, "NATIVE")
	if err != nil || otherBalance.Int64() != 400 {
		t.Fatalf("recipient balance = %v, err %v", otherBalance, err)
	}
	if err := m.VaultDebit("NATIVE", big.NewInt(1), other); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("vault underflow: got %v, want ErrInsufficientBalance", err)
	}
}

func TestHTLCRoundTripAndIndex(t *testing.T) {
	m := newTestManager()
	sender := addr(0x04)
	recipient := addr(0x05)
	commitment, err := hashlock.Commit([]byte("s1"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	record := &htlc.Record{
		ID:              id32(0xaa),
		Sender:          sender,
		Recipient:       recipient,
		Asset:           "NATIVE",
		Amount:          big.NewInt(997),
		GrossAmount:     big.NewInt(1_000),
		Fee:             big.NewInt(3),
		Commitment:      commitment,
		Deadline:        1_700_010_000,
		CreatedAt:       1_700_000_000,
		OriginChainRef:  "clk-local",
		CounterpartyRef: id32(0xbb),
		Secret:          []byte("s1"),
		Status:          htlc.StatusWithdrawn,
	}
	if err := m.HTLCPut(record); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := m.HTLCGet(record.ID)
	if !ok {
		t.Fatal("record not found")
	}
	if loaded.Status != htlc.StatusWithdrawn || string(loaded.Secret) != "s1" {
		t.Fatalf("status %s secret %q", loaded.Status, loaded.Secret)
	}
	if loaded.Deadline != record.Deadline || loaded.CreatedAt != record.CreatedAt {
		t.Fatal("timestamps lost")
	}
	if loaded.Commitment != commitment || loaded.CounterpartyRef != record.CounterpartyRef {
		t.Fatal("references lost")
	}
	if loaded.Amount.Int64() != 997 || loaded.GrossAmount.Int64() != 1_000 || loaded.Fee.Int64() != 3 {
		t.Fatal("amounts lost")
	}

	if _, ok := m.HTLCGet(id32(0xcc)); ok {
		t.Fatal("phantom record")
	}

	for i := byte(0); i < 5; i++ {
		if err := m.HTLCIndexAppend(sender, id32(i)); err != nil {
			t.Fatalf("index append: %v", err)
		}
	}
	// Duplicate ids collapse.
	if err := m.HTLCIndexAppend(sender, id32(2)); err != nil {
		t.Fatalf("dup append: %v", err)
	}
	ids, err := m.loadIndex(htlcIndexPrefix, sender)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("index length = %d, want 5", len(ids))
	}

	page := pageIndex(ids, 1, 2)
	if len(page) != 2 || page[0] != id32(1) || page[1] != id32(2) {
		t.Fatalf("page = %v", page)
	}
	if got := pageIndex(ids, 10, 2); got != nil {
		t.Fatalf("out-of-range page = %v", got)
	}
	if got := pageIndex(ids, 3, 0); len(got) != 2 {
		t.Fatalf("uncapped tail = %v", got)
	}
}

func TestOrderRoundTripAndNonce(t *testing.T) {
	m := newTestManager()
	maker := addr(0x06)

	for want := uint64(0); want < 3; want++ {
		nonce, err := m.NextOrderNonce(maker)
		if err != nil {
			t.Fatalf("nonce: %v", err)
		}
		if nonce != want {
			t.Fatalf("nonce = %d, want %d", nonce, want)
		}
	}

	commitment, err := hashlock.Commit([]byte("s2"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	order := &orderbook.Order{
		ID:          id32(0x11),
		Maker:       maker,
		SrcAsset:    "NATIVE",
		DstAsset:    "USDC",
		SrcAmount:   big.NewInt(100),
		DstAmount:   big.NewInt(99),
		SrcChainRef: "clk-local",
		DstChainRef: "eth-mainnet",
		Commitment:  commitment,
		Deadline:    1_700_020_000,
		Nonce:       2,
		HTLCRef:     id32(0x22),
		Resolver:    addr(0x07),
		CreatedAt:   1_700_000_000,
		MatchedAt:   1_700_001_000,
		Status:      orderbook.OrderMatched,
	}
	if err := m.OrderPut(order); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := m.OrderGet(order.ID)
	if !ok {
		t.Fatal("order not found")
	}
	if loaded.Status != orderbook.OrderMatched || loaded.HTLCRef != order.HTLCRef || loaded.Nonce != 2 {
		t.Fatalf("order fields lost: %+v", loaded)
	}
	if loaded.MatchedAt != order.MatchedAt || loaded.DstChainRef != "eth-mainnet" {
		t.Fatal("order metadata lost")
	}

	if err := m.OrderIndexAppend(maker, order.ID); err != nil {
		t.Fatalf("index: %v", err)
	}
	orders, err := m.OrderListByMaker(maker, 0, 10)
	if err != nil || len(orders) != 1 {
		t.Fatalf("list = %v, err %v", orders, err)
	}
}

func TestResolverRoundTrip(t *testing.T) {
	m := newTestManager()
	resolver := &orderbook.Resolver{
		Addr:      addr(0x08),
		Chains:    []string{"eth-mainnet", "arb-one"},
		MinFeeBps: 25,
		Active:    true,
		AddedAt:   1_700_000_000,
	}
	if err := m.ResolverPut(resolver); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := m.ResolverGet(resolver.Addr)
	if !ok {
		t.Fatal("resolver not found")
	}
	if len(loaded.Chains) != 2 || loaded.MinFeeBps != 25 || !loaded.Active || loaded.AddedAt != resolver.AddedAt {
		t.Fatalf("resolver fields lost: %+v", loaded)
	}
}

func TestBridgeStateRoundTrip(t *testing.T) {
	m := newTestManager()

	if _, ok := m.BridgeConfigGet(); ok {
		t.Fatal("config present before install")
	}
	cfg := &bridge.Config{
		RequiredSignatures: 3,
		MessageTimeout:     3600,
		MinStake:           big.NewInt(1_000),
		SlashAmount:        big.NewInt(500),
		Paused:             true,
	}
	if err := m.BridgeConfigPut(cfg); err != nil {
		t.Fatalf("put config: %v", err)
	}
	loaded, ok := m.BridgeConfigGet()
	if !ok {
		t.Fatal("config not found")
	}
	if loaded.RequiredSignatures != 3 || loaded.MessageTimeout != 3600 || !loaded.Paused {
		t.Fatalf("config lost: %+v", loaded)
	}
	if loaded.MinStake.Int64() != 1_000 || loaded.SlashAmount.Int64() != 500 {
		t.Fatalf("config amounts lost: %+v", loaded)
	}

	for i := byte(0); i < 3; i++ {
		v := &bridge.ValidatorInfo{
			Addr:     addr(0x20 + i),
			Stake:    big.NewInt(int64(1_000 + int(i))),
			Active:   true,
			JoinedAt: 1_700_000_000,
			LastSeen: 1_700_000_000,
		}
		if err := m.ValidatorPut(v); err != nil {
			t.Fatalf("put validator: %v", err)
		}
	}
	addrs, err := m.ValidatorAddresses()
	if err != nil || len(addrs) != 3 {
		t.Fatalf("addresses = %v, err %v", addrs, err)
	}
	// Re-putting an existing validator must not duplicate the list entry.
	existing, _ := m.ValidatorGet(addr(0x20))
	existing.Active = false
	if err := m.ValidatorPut(existing); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	addrs, err = m.ValidatorAddresses()
	if err != nil || len(addrs) != 3 {
		t.Fatalf("addresses after re-put = %v, err %v", addrs, err)
	}
	reloaded, ok := m.ValidatorGet(addr(0x20))
	if !ok || reloaded.Active {
		t.Fatal("deactivation not persisted")
	}

	digest := id32(0x99)
	if m.ExecutedHas(digest) {
		t.Fatal("digest present before insert")
	}
	if err := m.ExecutedInsert(digest); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !m.ExecutedHas(digest) {
		t.Fatal("digest missing after insert")
	}

	first, err := m.OutboundNonceNext()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	second, err := m.OutboundNonceNext()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("nonces = %d, %d", first, second)
	}
}

func TestEnginesOverManager(t *testing.T) {
	m := newTestManager()
	sender := addr(0x31)
	recipient := addr(0x32)
	if err := m.Credit(sender, "NATIVE", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	engine := htlc.NewEngine()
	engine.SetState(m)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	commitment, err := hashlock.Commit([]byte("s3"))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	record, err := engine.Lock(htlc.LockInput{
		Sender:     sender,
		Recipient:  recipient,
		Asset:      "NATIVE",
		Amount:     big.NewInt(1_000_000),
		Commitment: commitment,
		Deadline:   now + 7200,
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := engine.Withdraw(record.ID, []byte("s3"), recipient); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	balance, err := m.AccountBalance(recipient, "NATIVE")
	if err != nil || balance.Int64() != 1_000_000 {
		t.Fatalf("recipient balance = %v, err %v", balance, err)
	}
	if engine.StatusOf(record.ID) != htlc.StatusWithdrawn {
		t.Fatal("status not persisted through manager")
	}
}
