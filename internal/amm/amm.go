// Package amm implements the constant-product AMM math used by the
// proving witness (spec §4.H): swap output, fee accounting, LP mint/burn,
// and pool state hashing. Generalized from m1zr-ccoin's internal/economics
// bps-fee, integer-only style (FeeMarket/EstimateGas) to the settlement
// protocol's constant-product formulas.
package amm

import (
	"encoding/binary"
	"errors"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// FeeDenominator is the bps denominator used throughout this package.
const FeeDenominator = 10000

// Pool errors.
var (
	// ErrEmptyReserves is returned when a swap is attempted against a pool
	// with zero reserves on either side (spec §8: "A pool with empty
	// reserves rejects swaps").
	ErrEmptyReserves = errors.New("amm: empty reserves")
	// ErrZeroSupply is returned by Withdraw against a pool with no LP
	// supply outstanding.
	ErrZeroSupply = errors.New("amm: zero LP supply")
)

// SwapOutput computes the output amount for an input of delta against
// reserves (reserveIn, reserveOut) with a fee in bps, per spec §4.H's
// exact integer form (rearranged to avoid intermediate overflow by using
// big.Int for the cross-multiplication).
func SwapOutput(reserveIn, reserveOut, delta uint64, feeBps uint32) (uint64, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return 0, ErrEmptyReserves
	}
	if delta == 0 {
		return 0, nil
	}

	deltaEffNumerator := new(big.Int).Mul(big.NewInt(int64(delta)), big.NewInt(int64(FeeDenominator-int64(feeBps))))

	numerator := new(big.Int).Mul(big.NewInt(int64(reserveOut)), deltaEffNumerator)

	denomLeft := new(big.Int).Mul(big.NewInt(int64(reserveIn)), big.NewInt(FeeDenominator))
	denominator := new(big.Int).Add(denomLeft, deltaEffNumerator)

	out := new(big.Int).Div(numerator, denominator)
	if !out.IsUint64() {
		return 0, errors.New("amm: swap output overflow")
	}
	return out.Uint64(), nil
}

// MinOut applies a slippage tolerance in bps to an expected output amount.
func MinOut(amountOut uint64, slippageBps uint32) uint64 {
	num := new(big.Int).Mul(big.NewInt(int64(amountOut)), big.NewInt(FeeDenominator-int64(slippageBps)))
	num.Div(num, big.NewInt(FeeDenominator))
	return num.Uint64()
}

// FirstDeposit computes the LP minted for a pool's first liquidity
// deposit: floor(sqrt(deltaA * deltaB)).
func FirstDeposit(deltaA, deltaB uint64) uint64 {
	product := new(big.Int).Mul(big.NewInt(int64(deltaA)), big.NewInt(int64(deltaB)))
	return isqrtBig(product).Uint64()
}

// SubsequentDeposit computes LP minted for a deposit into a pool that
// already has supply L and reserves (reserveA, reserveB); the pool only
// consumes the proportional amounts of each side.
func SubsequentDeposit(deltaA, deltaB, reserveA, reserveB, supply uint64) (lpMinted, consumedA, consumedB uint64) {
	fromA := new(big.Int).Mul(big.NewInt(int64(deltaA)), big.NewInt(int64(supply)))
	fromA.Div(fromA, big.NewInt(int64(reserveA)))

	fromB := new(big.Int).Mul(big.NewInt(int64(deltaB)), big.NewInt(int64(supply)))
	fromB.Div(fromB, big.NewInt(int64(reserveB)))

	var minted *big.Int
	if fromA.Cmp(fromB) <= 0 {
		minted = fromA
	} else {
		minted = fromB
	}
	lpMinted = minted.Uint64()

	consumedA = new(big.Int).Div(new(big.Int).Mul(minted, big.NewInt(int64(reserveA))), big.NewInt(int64(supply))).Uint64()
	consumedB = new(big.Int).Div(new(big.Int).Mul(minted, big.NewInt(int64(reserveB))), big.NewInt(int64(supply))).Uint64()
	return lpMinted, consumedA, consumedB
}

// Withdraw computes the amounts returned for burning lp LP tokens against
// a pool with reserves (reserveA, reserveB) and total supply.
func Withdraw(lp, reserveA, reserveB, supply uint64) (uint64, uint64, error) {
	if supply == 0 {
		return 0, 0, ErrZeroSupply
	}
	deltaA := new(big.Int).Mul(big.NewInt(int64(lp)), big.NewInt(int64(reserveA)))
	deltaA.Div(deltaA, big.NewInt(int64(supply)))

	deltaB := new(big.Int).Mul(big.NewInt(int64(lp)), big.NewInt(int64(reserveB)))
	deltaB.Div(deltaB, big.NewInt(int64(supply)))

	return deltaA.Uint64(), deltaB.Uint64(), nil
}

// StateHash computes keccak256(reserve_a_le(8) || reserve_b_le(8) ||
// lp_supply_le(8) || pool_id(32)), the public input bound into the
// settlement witness for swaps and liquidity operations (spec §6).
func StateHash(reserveA, reserveB, lpSupply uint64, poolID [32]byte) [32]byte {
	buf := make([]byte, 0, 8+8+8+32)
	var a, b, l [8]byte
	binary.LittleEndian.PutUint64(a[:], reserveA)
	binary.LittleEndian.PutUint64(b[:], reserveB)
	binary.LittleEndian.PutUint64(l[:], lpSupply)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	buf = append(buf, l[:]...)
	buf = append(buf, poolID[:]...)

	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	h.Sum(out[:0])
	return out
}

// isqrtBig computes the integer square root of a non-negative big.Int via
// Newton's method.
func isqrtBig(n *big.Int) *big.Int {
	if n.Sign() <= 0 {
		return big.NewInt(0)
	}
	x := new(big.Int).Set(n)
	y := new(big.Int).Add(x, big.NewInt(1))
	y.Div(y, big.NewInt(2))
	for y.Cmp(x) < 0 {
		x.Set(y)
		y.Add(x, new(big.Int).Div(n, x))
		y.Div(y, big.NewInt(2))
	}
	return x
}
