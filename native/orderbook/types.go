package orderbook

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslock/core/types"
	"crosslock/native/hashlock"
	"crosslock/native/policy"
)

// OrderStatus tracks a swap intent through its lifecycle. The zero value is
// the "no such order" sentinel.
type OrderStatus uint8

const (
	OrderInvalid OrderStatus = iota
	OrderPending
	OrderMatched
	OrderCompleted
	OrderCancelled
	OrderExpired
	OrderDisputed
)

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderInvalid, OrderPending, OrderMatched, OrderCompleted, OrderCancelled, OrderExpired, OrderDisputed:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderInvalid:
		return "invalid"
	case OrderPending:
		return "pending"
	case OrderMatched:
		return "matched"
	case OrderCompleted:
		return "completed"
	case OrderCancelled:
		return "cancelled"
	case OrderExpired:
		return "expired"
	case OrderDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave the state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCompleted, OrderCancelled, OrderExpired, OrderDisputed:
		return true
	default:
		return false
	}
}

// Order is one cross-chain swap intent. The matcher owns these records; it
// creates and references ledger records but never owns them. A zero Taker
// means any resolver may fill the order.
type Order struct {
	ID          [32]byte
	Maker       [20]byte
	Taker       [20]byte
	SrcAsset    string
	DstAsset    string
	SrcAmount   *big.Int
	DstAmount   *big.Int
	SrcChainRef string
	DstChainRef string
	Commitment  hashlock.Commitment
	Deadline    int64
	Nonce       uint64
	HTLCRef     [32]byte
	Resolver    [20]byte
	CreatedAt   int64
	MatchedAt   int64
	Status      OrderStatus
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.SrcAmount = cloneBig(o.SrcAmount)
	clone.DstAmount = cloneBig(o.DstAmount)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// OpenToAnyTaker reports whether the taker constraint is the wildcard.
func (o *Order) OpenToAnyTaker() bool {
	return o != nil && o.Taker == [20]byte{}
}

// SanitizeOrder validates and normalises the supplied order, returning a
// clone with canonical asset and chain casing.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, ErrNilOrder
	}
	clone := o.Clone()
	srcAsset, err := types.NormalizeAsset(clone.SrcAsset)
	if err != nil {
		return nil, ErrInvalidAsset
	}
	dstAsset, err := types.NormalizeAsset(clone.DstAsset)
	if err != nil {
		return nil, ErrInvalidAsset
	}
	clone.SrcAsset = srcAsset
	clone.DstAsset = dstAsset
	clone.SrcChainRef = policy.NormalizeChainRef(clone.SrcChainRef)
	clone.DstChainRef = policy.NormalizeChainRef(clone.DstChainRef)
	if clone.SrcAmount.Sign() < 0 || clone.DstAmount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if !clone.Status.Valid() {
		return nil, ErrInvalidState
	}
	return clone, nil
}

// Resolver is a registered market maker willing to fill orders toward
// specific destination chains. Whether it actually fills anything is its own
// business; the matcher only checks registration and fee floor.
type Resolver struct {
	Addr      [20]byte
	Chains    []string
	MinFeeBps uint32
	Active    bool
	AddedAt   int64
}

// Clone returns a deep copy of the resolver entry.
func (r *Resolver) Clone() *Resolver {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Chains = append([]string(nil), r.Chains...)
	return &clone
}

// SupportsChain reports whether the resolver declared the destination chain.
func (r *Resolver) SupportsChain(ref string) bool {
	if r == nil {
		return false
	}
	normalized := policy.NormalizeChainRef(ref)
	for _, chain := range r.Chains {
		if policy.NormalizeChainRef(chain) == normalized {
			return true
		}
	}
	return false
}

// ComputeOrderID derives the deterministic order identifier. The maker's
// per-order nonce keeps ids distinct across otherwise identical intents, and
// all inputs are public so counterparties can pre-compute the id.
func ComputeOrderID(maker [20]byte, srcAsset, dstAsset string, srcAmount, dstAmount *big.Int, srcChain, dstChain string, commitment hashlock.Commitment, deadline int64, nonce uint64) [32]byte {
	normalize := func(asset string) string {
		normalized, err := types.NormalizeAsset(asset)
		if err != nil {
			return ""
		}
		return normalized
	}
	var srcBuf, dstBuf [32]byte
	if srcAmount != nil && srcAmount.Sign() > 0 {
		srcAmount.FillBytes(srcBuf[:])
	}
	if dstAmount != nil && dstAmount.Sign() > 0 {
		dstAmount.FillBytes(dstBuf[:])
	}
	var tail [16]byte
	binary.BigEndian.PutUint64(tail[:8], uint64(deadline))
	binary.BigEndian.PutUint64(tail[8:], nonce)
	hash := ethcrypto.Keccak256(
		maker[:],
		[]byte(normalize(srcAsset)),
		[]byte(normalize(dstAsset)),
		srcBuf[:],
		dstBuf[:],
		[]byte(policy.NormalizeChainRef(srcChain)),
		[]byte(policy.NormalizeChainRef(dstChain)),
		commitment[:],
		tail[:],
	)
	var id [32]byte
	copy(id[:], hash)
	return id
}
