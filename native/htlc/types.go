package htlc

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslock/core/types"
	"crosslock/native/hashlock"
)

// Status represents the lifecycle states of a hash time-locked record. The
// zero value doubles as the "no such record" sentinel; no record is ever
// stored with it.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusActive
	StatusWithdrawn
	StatusRefunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusInvalid, StatusActive, StatusWithdrawn, StatusRefunded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusActive:
		return "active"
	case StatusWithdrawn:
		return "withdrawn"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Record captures one leg of a swap held by the ledger. The identifier is a
// deterministic function of the lock parameters so both parties can compute
// it before the record exists. Amount is net of the protocol fee; GrossAmount
// keeps the requested figure for audit.
type Record struct {
	ID              [32]byte
	Sender          [20]byte
	Recipient       [20]byte
	Asset           string
	Amount          *big.Int
	GrossAmount     *big.Int
	Fee             *big.Int
	Commitment      hashlock.Commitment
	Deadline        int64
	CreatedAt       int64
	OriginChainRef  string
	CounterpartyRef [32]byte
	Secret          []byte
	Status          Status
}

// Clone returns a deep copy so callers can mutate safely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Amount = cloneBig(r.Amount)
	clone.GrossAmount = cloneBig(r.GrossAmount)
	clone.Fee = cloneBig(r.Fee)
	if r.Secret != nil {
		clone.Secret = append([]byte(nil), r.Secret...)
	}
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizeRecord validates and normalises the supplied record, returning a
// clone with canonical asset casing and non-nil amounts.
func SanitizeRecord(r *Record) (*Record, error) {
	if r == nil {
		return nil, ErrNilRecord
	}
	clone := r.Clone()
	asset, err := types.NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, ErrInvalidAsset
	}
	clone.Asset = asset
	if clone.Amount.Sign() < 0 || clone.GrossAmount.Sign() < 0 || clone.Fee.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if !clone.Status.Valid() {
		return nil, ErrInvalidState
	}
	return clone, nil
}

// ComputeID derives the deterministic record identifier from public lock
// inputs. Any third party can pre-compute the id before Lock is called; Lock
// produces a record addressable at exactly this value. The gross (requested)
// amount is hashed, not the post-fee figure.
func ComputeID(sender, recipient [20]byte, asset string, amount *big.Int, commitment hashlock.Commitment, deadline int64) [32]byte {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		normalized = ""
	}
	var amountBuf [32]byte
	if amount != nil && amount.Sign() > 0 {
		amount.FillBytes(amountBuf[:])
	}
	var deadlineBuf [8]byte
	binary.BigEndian.PutUint64(deadlineBuf[:], uint64(deadline))
	hash := ethcrypto.Keccak256(
		sender[:],
		recipient[:],
		[]byte(normalized),
		amountBuf[:],
		commitment[:],
		deadlineBuf[:],
	)
	var id [32]byte
	copy(id[:], hash)
	return id
}
