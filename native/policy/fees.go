package policy

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// BpsDenominator is the basis-point scale.
	BpsDenominator = 10_000
	// MaxFeeBps caps the protocol fee at 5%.
	MaxFeeBps = 500
)

// ErrFeeBpsTooHigh indicates a configured fee above the protocol ceiling.
var ErrFeeBpsTooHigh = errors.New("policy: fee bps exceeds ceiling")

// FeeInput captures the context required to evaluate the protocol fee for a
// lock.
type FeeInput struct {
	Gross  *big.Int
	FeeBps uint32
}

// FeeResult summarises the computed fee split. Fee + Net always equals the
// gross amount; rounding on the fee is toward zero.
type FeeResult struct {
	Fee *big.Int
	Net *big.Int
}

// ApplyFee evaluates the protocol fee for the supplied gross amount. The
// caller is responsible for routing the fee to the collector account.
func ApplyFee(input FeeInput) (FeeResult, error) {
	result := FeeResult{Fee: big.NewInt(0), Net: big.NewInt(0)}
	if input.FeeBps > MaxFeeBps {
		return result, fmt.Errorf("%w: %d > %d", ErrFeeBpsTooHigh, input.FeeBps, MaxFeeBps)
	}
	if input.Gross == nil || input.Gross.Sign() <= 0 {
		return result, nil
	}
	result.Net = new(big.Int).Set(input.Gross)
	if input.FeeBps == 0 {
		return result, nil
	}
	fee := new(big.Int).Mul(input.Gross, big.NewInt(int64(input.FeeBps)))
	fee.Div(fee, big.NewInt(BpsDenominator))
	if fee.Sign() <= 0 {
		return result, nil
	}
	result.Fee = fee
	result.Net = new(big.Int).Sub(input.Gross, fee)
	return result, nil
}
