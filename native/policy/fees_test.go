package policy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyFeeSplitsGross(t *testing.T) {
	result, err := ApplyFee(FeeInput{Gross: big.NewInt(1_000_000), FeeBps: 30})
	require.NoError(t, err)
	require.Equal(t, int64(3_000), result.Fee.Int64())
	require.Equal(t, int64(997_000), result.Net.Int64())
	require.Equal(t, int64(1_000_000), new(big.Int).Add(result.Fee, result.Net).Int64())
}

func TestApplyFeeRoundsDown(t *testing.T) {
	result, err := ApplyFee(FeeInput{Gross: big.NewInt(101), FeeBps: 50})
	require.NoError(t, err)
	// 101 * 50 / 10000 = 0.505 -> 0
	require.Equal(t, int64(0), result.Fee.Int64())
	require.Equal(t, int64(101), result.Net.Int64())
}

func TestApplyFeeZeroBps(t *testing.T) {
	result, err := ApplyFee(FeeInput{Gross: big.NewInt(500), FeeBps: 0})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Fee.Int64())
	require.Equal(t, int64(500), result.Net.Int64())
}

func TestApplyFeeCeiling(t *testing.T) {
	_, err := ApplyFee(FeeInput{Gross: big.NewInt(500), FeeBps: MaxFeeBps + 1})
	require.ErrorIs(t, err, ErrFeeBpsTooHigh)

	result, err := ApplyFee(FeeInput{Gross: big.NewInt(10_000), FeeBps: MaxFeeBps})
	require.NoError(t, err)
	require.Equal(t, int64(500), result.Fee.Int64())
}

func TestApplyFeeNilGross(t *testing.T) {
	result, err := ApplyFee(FeeInput{FeeBps: 30})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Fee.Int64())
	require.Equal(t, int64(0), result.Net.Int64())
}
