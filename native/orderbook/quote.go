package orderbook

import (
	"math/big"

	"crosslock/native/policy"
)

// Quote prices a prospective swap to a destination chain before any order is
// placed: the chain-pair lock windows a match would receive and the suggested
// resolver fee premium for the notional. The premium is maker guidance;
// TakeOrder enforces each resolver's own declared floor.
type Quote struct {
	SrcChainRef       string
	DstChainRef       string
	SuggestedFeeBps   uint32
	SourceWindow      int64
	DestinationWindow int64
}

// Quote computes the swap quote for the local chain against the named
// destination.
func (e *Engine) Quote(dstChainRef string, amount *big.Int) (*Quote, error) {
	if e == nil || e.chains == nil {
		return nil, errNilChains
	}
	if err := e.chains.ValidateRemote(dstChainRef); err != nil {
		return nil, err
	}
	src, ok := e.chains.Lookup(e.chains.LocalRef())
	if !ok {
		return nil, errNilChains
	}
	dst, _ := e.chains.Lookup(dstChainRef)
	pair, err := e.chains.ComputeTimelocks(src.Ref, dst.Ref)
	if err != nil {
		return nil, err
	}
	return &Quote{
		SrcChainRef:       src.Ref,
		DstChainRef:       dst.Ref,
		SuggestedFeeBps:   policy.RiskPremiumBps(src, dst, amount),
		SourceWindow:      pair.SourceWindow,
		DestinationWindow: pair.DestinationWindow,
	}, nil
}
