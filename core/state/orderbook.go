package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"crosslock/native/hashlock"
	"crosslock/native/orderbook"
)

type storedOrder struct {
	ID          [32]byte
	Maker       [20]byte
	Taker       [20]byte
	SrcAsset    string
	DstAsset    string
	SrcAmount   *big.Int
	DstAmount   *big.Int
	SrcChainRef string
	DstChainRef string
	Commitment  [32]byte
	Deadline    *big.Int
	Nonce       uint64
	HTLCRef     [32]byte
	Resolver    [20]byte
	CreatedAt   *big.Int
	MatchedAt   *big.Int
	Status      uint8
}

func newStoredOrder(o *orderbook.Order) *storedOrder {
	stored := &storedOrder{
		ID:          o.ID,
		Maker:       o.Maker,
		Taker:       o.Taker,
		SrcAsset:    o.SrcAsset,
		DstAsset:    o.DstAsset,
		SrcAmount:   big.NewInt(0),
		DstAmount:   big.NewInt(0),
		SrcChainRef: o.SrcChainRef,
		DstChainRef: o.DstChainRef,
		Commitment:  [32]byte(o.Commitment),
		Deadline:    big.NewInt(o.Deadline),
		Nonce:       o.Nonce,
		HTLCRef:     o.HTLCRef,
		Resolver:    o.Resolver,
		CreatedAt:   big.NewInt(o.CreatedAt),
		MatchedAt:   big.NewInt(o.MatchedAt),
		Status:      uint8(o.Status),
	}
	if o.SrcAmount != nil {
		stored.SrcAmount = new(big.Int).Set(o.SrcAmount)
	}
	if o.DstAmount != nil {
		stored.DstAmount = new(big.Int).Set(o.DstAmount)
	}
	return stored
}

func (s *storedOrder) toOrder() (*orderbook.Order, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil order storage record")
	}
	order := &orderbook.Order{
		ID:          s.ID,
		Maker:       s.Maker,
		Taker:       s.Taker,
		SrcAsset:    s.SrcAsset,
		DstAsset:    s.DstAsset,
		SrcAmount:   big.NewInt(0),
		DstAmount:   big.NewInt(0),
		SrcChainRef: s.SrcChainRef,
		DstChainRef: s.DstChainRef,
		Commitment:  hashlock.Commitment(s.Commitment),
		Nonce:       s.Nonce,
		HTLCRef:     s.HTLCRef,
		Resolver:    s.Resolver,
		Status:      orderbook.OrderStatus(s.Status),
	}
	if s.SrcAmount != nil {
		order.SrcAmount = new(big.Int).Set(s.SrcAmount)
	}
	if s.DstAmount != nil {
		order.DstAmount = new(big.Int).Set(s.DstAmount)
	}
	if s.Deadline != nil {
		order.Deadline = s.Deadline.Int64()
	}
	if s.CreatedAt != nil {
		order.CreatedAt = s.CreatedAt.Int64()
	}
	if s.MatchedAt != nil {
		order.MatchedAt = s.MatchedAt.Int64()
	}
	if !order.Status.Valid() {
		return nil, orderbook.ErrInvalidState
	}
	return order, nil
}

// OrderPut persists an order.
func (m *Manager) OrderPut(o *orderbook.Order) error {
	sanitized, err := orderbook.SanitizeOrder(o)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredOrder(sanitized))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(storageKey(orderRecordPrefix, sanitized.ID[:]), encoded)
}

// OrderGet loads an order by id.
func (m *Manager) OrderGet(id [32]byte) (*orderbook.Order, bool) {
	m.mu.Lock()
	data, err := m.db.Get(storageKey(orderRecordPrefix, id[:]))
	m.mu.Unlock()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedOrder)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	order, err := stored.toOrder()
	if err != nil {
		return nil, false
	}
	return order, true
}

// OrderIndexAppend adds an order id to a maker's enumeration index.
func (m *Manager) OrderIndexAppend(maker [20]byte, id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendIndex(orderIndexPrefix, maker, id)
}

// OrderListByMaker returns a page of a maker's orders in insertion order.
func (m *Manager) OrderListByMaker(maker [20]byte, offset, limit int) ([]*orderbook.Order, error) {
	m.mu.Lock()
	ids, err := m.loadIndex(orderIndexPrefix, maker)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	page := pageIndex(ids, offset, limit)
	orders := make([]*orderbook.Order, 0, len(page))
	for _, id := range page {
		order, ok := m.OrderGet(id)
		if !ok {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// NextOrderNonce allocates and persists the maker's next monotonic nonce.
func (m *Manager) NextOrderNonce(maker [20]byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storageKey(orderNoncePrefix, maker[:])
	nonce, err := m.loadUint64(key)
	if err != nil {
		return 0, err
	}
	if err := m.writeUint64(key, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

type storedResolver struct {
	Addr      [20]byte
	Chains    []string
	MinFeeBps uint32
	Active    bool
	AddedAt   *big.Int
}

// ResolverPut persists a resolver registry entry.
func (m *Manager) ResolverPut(r *orderbook.Resolver) error {
	if r == nil {
		return fmt.Errorf("state: nil resolver")
	}
	stored := &storedResolver{
		Addr:      r.Addr,
		Chains:    append([]string(nil), r.Chains...),
		MinFeeBps: r.MinFeeBps,
		Active:    r.Active,
		AddedAt:   big.NewInt(r.AddedAt),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(storageKey(resolverPrefix, r.Addr[:]), encoded)
}

// ResolverGet loads a resolver registry entry.
func (m *Manager) ResolverGet(addr [20]byte) (*orderbook.Resolver, bool) {
	m.mu.Lock()
	data, err := m.db.Get(storageKey(resolverPrefix, addr[:]))
	m.mu.Unlock()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedResolver)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	resolver := &orderbook.Resolver{
		Addr:      stored.Addr,
		Chains:    append([]string(nil), stored.Chains...),
		MinFeeBps: stored.MinFeeBps,
		Active:    stored.Active,
	}
	if stored.AddedAt != nil {
		resolver.AddedAt = stored.AddedAt.Int64()
	}
	return resolver, true
}
