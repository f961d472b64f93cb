package policy

import (
	"math/big"
)

// Risk premium heuristics. Resolvers price the chance that a slow or
// reorg-prone destination chain forces them to sit on inventory; the premium
// is surfaced to makers as guidance, it is never enforced on-chain.
const (
	// riskBaseBps is the floor premium applied to every cross-chain pair.
	riskBaseBps = 5
	// riskBufferDivisor converts confirmation-buffer seconds into premium bps.
	riskBufferDivisor = 600
	// riskLargeAmountBps is added once the notional crosses the large-trade
	// threshold.
	riskLargeAmountBps = 10
	// MaxRiskPremiumBps caps the suggested premium.
	MaxRiskPremiumBps = 200
)

// LargeTradeThreshold is the notional above which the size premium applies.
var LargeTradeThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil) // 1000 units at 18 decimals

// RiskPremiumBps suggests a resolver fee premium in basis points for moving
// the supplied amount between the two chains.
func RiskPremiumBps(src, dst ChainInfo, amount *big.Int) uint32 {
	premium := int64(riskBaseBps)
	premium += src.ConfirmationBuffer / riskBufferDivisor
	premium += dst.ConfirmationBuffer / riskBufferDivisor
	if amount != nil && amount.Cmp(LargeTradeThreshold) >= 0 {
		premium += riskLargeAmountBps
	}
	if premium > MaxRiskPremiumBps {
		premium = MaxRiskPremiumBps
	}
	if premium < 0 {
		premium = 0
	}
	return uint32(premium)
}
