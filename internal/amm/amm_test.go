package amm_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/amm"
)

// Scenario 4: AMM swap, spec §8.
func TestScenario4AMMSwap(t *testing.T) {
	out, err := amm.SwapOutput(100_000, 200_000, 1_000, 30)
	require.NoError(t, err)
	require.InDelta(t, 1973, out, 2)

	minOut := amm.MinOut(out, 50) // 0.5% slippage
	require.Equal(t, out*9950/10000, minOut)
}

// Scenario 5: LP first deposit, spec §8.
func TestScenario5LPFirstDeposit(t *testing.T) {
	minted := amm.FirstDeposit(10_000, 40_000)
	require.Equal(t, uint64(20_000), minted)
}

func TestSwapRejectsEmptyReserves(t *testing.T) {
	_, err := amm.SwapOutput(0, 100, 10, 30)
	require.ErrorIs(t, err, amm.ErrEmptyReserves)
}

func TestSwapZeroDeltaYieldsZeroOutput(t *testing.T) {
	out, err := amm.SwapOutput(1000, 2000, 0, 30)
	require.NoError(t, err)
	require.Zero(t, out)
}

// AMM conservation (no fee): R_in*R_out <= (R_in+delta)(R_out-delta_out).
func TestConservationWithNoFee(t *testing.T) {
	reserveIn, reserveOut := uint64(50_000), uint64(80_000)
	delta := uint64(2_500)
	out, err := amm.SwapOutput(reserveIn, reserveOut, delta, 0)
	require.NoError(t, err)

	lhs := new(big.Int).Mul(big.NewInt(int64(reserveIn)), big.NewInt(int64(reserveOut)))
	rhs := new(big.Int).Mul(
		new(big.Int).Add(big.NewInt(int64(reserveIn)), big.NewInt(int64(delta))),
		new(big.Int).Sub(big.NewInt(int64(reserveOut)), big.NewInt(int64(out))),
	)
	require.True(t, lhs.Cmp(rhs) <= 0)
}

// AMM LP round-trip: minting at the pool ratio then burning returns the
// same deposit up to integer flooring.
func TestLPRoundTrip(t *testing.T) {
	reserveA, reserveB := uint64(10_000), uint64(40_000)
	supply := amm.FirstDeposit(reserveA, reserveB)

	deltaA, deltaB := uint64(1_000), uint64(4_000) // matches the pool's ratio exactly
	minted, consumedA, consumedB := amm.SubsequentDeposit(deltaA, deltaB, reserveA, reserveB, supply)
	require.Equal(t, deltaA, consumedA)
	require.Equal(t, deltaB, consumedB)

	newReserveA, newReserveB, newSupply := reserveA+consumedA, reserveB+consumedB, supply+minted

	backA, backB, err := amm.Withdraw(minted, newReserveA, newReserveB, newSupply)
	require.NoError(t, err)
	require.Equal(t, deltaA, backA)
	require.Equal(t, deltaB, backB)
}

func TestWithdrawRejectsZeroSupply(t *testing.T) {
	_, _, err := amm.Withdraw(10, 100, 100, 0)
	require.ErrorIs(t, err, amm.ErrZeroSupply)
}

func TestStateHashDeterministic(t *testing.T) {
	poolID := [32]byte{1, 2, 3}
	h1 := amm.StateHash(100, 200, 300, poolID)
	h2 := amm.StateHash(100, 200, 300, poolID)
	require.Equal(t, h1, h2)

	h3 := amm.StateHash(101, 200, 300, poolID)
	require.NotEqual(t, h1, h3)
}
