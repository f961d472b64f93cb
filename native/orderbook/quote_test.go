package orderbook

import (
	"errors"
	"math/big"
	"testing"

	"crosslock/native/policy"
)

func TestQuoteForDestination(t *testing.T) {
	f := newFixture(t)

	quote, err := f.engine.Quote("eth-mainnet", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.SrcChainRef != "clk-local" || quote.DstChainRef != "eth-mainnet" {
		t.Fatalf("pair = %s -> %s", quote.SrcChainRef, quote.DstChainRef)
	}
	// base 5 + 600/600 + 900/600 buffer premiums.
	if quote.SuggestedFeeBps != 7 {
		t.Fatalf("fee = %d bps, want 7", quote.SuggestedFeeBps)
	}
	wantDst := policy.DefaultDestinationWindow + 900
	wantSrc := wantDst + policy.SourceStagger + 600
	if quote.DestinationWindow != wantDst || quote.SourceWindow != wantSrc {
		t.Fatalf("windows = %d/%d, want %d/%d",
			quote.SourceWindow, quote.DestinationWindow, wantSrc, wantDst)
	}
}

func TestQuoteLargeNotionalPremium(t *testing.T) {
	f := newFixture(t)

	quote, err := f.engine.Quote("eth-mainnet", new(big.Int).Set(policy.LargeTradeThreshold))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.SuggestedFeeBps != 17 {
		t.Fatalf("fee = %d bps, want 17", quote.SuggestedFeeBps)
	}
}

func TestQuoteRejectsBadDestination(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.Quote("clk-local", nil); !errors.Is(err, policy.ErrSameChain) {
		t.Fatalf("local destination: got %v, want ErrSameChain", err)
	}
	if _, err := f.engine.Quote("sol-mainnet", nil); !errors.Is(err, policy.ErrUnknownChain) {
		t.Fatalf("unknown destination: got %v, want ErrUnknownChain", err)
	}
}
