package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Reference timelock bounds, in seconds.
const (
	MinTimelock = int64(3600)           // 1 hour
	MaxTimelock = int64(30 * 24 * 3600) // 30 days
	// MinOrderWindow is the earliest acceptable order deadline offset.
	MinOrderWindow = int64(2 * 3600)
	// SourceStagger is the fixed safety margin added to the source leg on top
	// of the destination window. Keeps the refund windows of the two legs from
	// ever overlapping.
	SourceStagger = int64(3600)
	// DefaultDestinationWindow is the base window granted to the destination
	// leg before confirmation buffers.
	DefaultDestinationWindow = int64(4 * 3600)
)

var (
	// ErrUnknownChain indicates the chain reference is not registered.
	ErrUnknownChain = errors.New("policy: unknown chain")
	// ErrSameChain indicates source and destination chains are identical.
	ErrSameChain = errors.New("policy: source and destination chains must differ")
)

// ChainInfo describes a remote ledger the node is willing to pair with.
type ChainInfo struct {
	Ref                string
	Name               string
	ConfirmationBuffer int64 // seconds of settlement latency to absorb
}

// ChainSet is the registry of recognised chains, keyed by normalised ref.
// Built once from configuration; read-only afterwards.
type ChainSet struct {
	local  string
	chains map[string]ChainInfo
}

// NormalizeChainRef canonicalises a chain reference for lookups.
func NormalizeChainRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// NewChainSet builds the registry. The local chain must be present in the
// supplied list.
func NewChainSet(localRef string, chains []ChainInfo) (*ChainSet, error) {
	local := NormalizeChainRef(localRef)
	if local == "" {
		return nil, fmt.Errorf("policy: local chain ref required")
	}
	set := &ChainSet{local: local, chains: make(map[string]ChainInfo, len(chains))}
	for _, info := range chains {
		ref := NormalizeChainRef(info.Ref)
		if ref == "" {
			return nil, fmt.Errorf("policy: chain ref must not be empty")
		}
		if info.ConfirmationBuffer < 0 {
			return nil, fmt.Errorf("policy: chain %s has negative confirmation buffer", ref)
		}
		info.Ref = ref
		set.chains[ref] = info
	}
	if _, ok := set.chains[local]; !ok {
		return nil, fmt.Errorf("%w: local chain %s not registered", ErrUnknownChain, local)
	}
	return set, nil
}

// LocalRef returns the normalised local chain reference.
func (s *ChainSet) LocalRef() string {
	if s == nil {
		return ""
	}
	return s.local
}

// Lookup resolves a chain by reference.
func (s *ChainSet) Lookup(ref string) (ChainInfo, bool) {
	if s == nil {
		return ChainInfo{}, false
	}
	info, ok := s.chains[NormalizeChainRef(ref)]
	return info, ok
}

// ValidateRemote confirms the supplied ref names a registered chain other than
// the local one.
func (s *ChainSet) ValidateRemote(ref string) error {
	normalized := NormalizeChainRef(ref)
	if normalized == s.LocalRef() {
		return fmt.Errorf("%w: %s", ErrSameChain, normalized)
	}
	if _, ok := s.Lookup(normalized); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, normalized)
	}
	return nil
}

// TimelockPair is the per-leg lock window computed for a matched order. The
// source window is strictly longer than the destination one so the maker can
// always withdraw on the destination leg before the taker's refund window on
// the source leg opens.
type TimelockPair struct {
	SourceWindow      int64
	DestinationWindow int64
}

// ComputeTimelocks derives the chain-pair-aware lock windows. Destination
// window = base + destination confirmation buffer; source window adds the
// fixed stagger plus the source chain's own buffer.
func (s *ChainSet) ComputeTimelocks(srcRef, dstRef string) (TimelockPair, error) {
	src, ok := s.Lookup(srcRef)
	if !ok {
		return TimelockPair{}, fmt.Errorf("%w: %s", ErrUnknownChain, NormalizeChainRef(srcRef))
	}
	dst, ok := s.Lookup(dstRef)
	if !ok {
		return TimelockPair{}, fmt.Errorf("%w: %s", ErrUnknownChain, NormalizeChainRef(dstRef))
	}
	if src.Ref == dst.Ref {
		return TimelockPair{}, fmt.Errorf("%w: %s", ErrSameChain, src.Ref)
	}
	pair := TimelockPair{
		DestinationWindow: DefaultDestinationWindow + dst.ConfirmationBuffer,
	}
	pair.SourceWindow = pair.DestinationWindow + SourceStagger + src.ConfirmationBuffer
	return pair, nil
}
