// Package curve implements BabyJubJub twisted-Edwards group operations on
// top of iden3's standard Go implementation, the curve/hash pair the rest
// of the ZK-Go ecosystem shares for this exact field.
package curve

import (
	"errors"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"

	"github.com/ccoin/shieldengine/internal/field"
)

// ErrOffCurve is returned when a decoded point does not satisfy the curve
// equation, or lies outside the prime-order subgroup where that matters.
var ErrOffCurve = errors.New("curve: point not on curve or not in subgroup")

// SubgroupOrder is the prime order l of BabyJubJub's prime-order subgroup,
// matching the spec's stated constant exactly.
var SubgroupOrder = new(big.Int).Set(babyjub.SubOrder)

// Point is a BabyJubJub affine point.
type Point struct {
	inner babyjub.Point
}

// Generator returns the SDK-standard base point (the cofactor-cleared
// generator of the prime-order subgroup, babyjub.B8).
func Generator() Point {
	return Point{inner: *babyjub.B8}
}

// Identity returns the group identity (0, 1).
func Identity() Point {
	p := babyjub.NewPoint()
	p.X.SetInt64(0)
	p.Y.SetInt64(1)
	return Point{inner: *p}
}

// FromXY builds a point from raw coordinates without validating it lies on
// the curve; callers that accept untrusted input must call IsOnCurve.
func FromXY(x, y field.Element) Point {
	p := babyjub.NewPoint()
	p.X.Set(x.BigInt())
	p.Y.Set(y.BigInt())
	return Point{inner: *p}
}

// X returns the point's x-coordinate as a field element.
func (p Point) X() field.Element { return field.FromBigInt(p.inner.X) }

// Y returns the point's y-coordinate as a field element.
func (p Point) Y() field.Element { return field.FromBigInt(p.inner.Y) }

// IsOnCurve reports whether p satisfies the twisted-Edwards curve equation.
func (p Point) IsOnCurve() bool { return p.inner.InCurve() }

// IsInSubgroup reports whether p lies in the prime-order subgroup of
// order SubgroupOrder.
func (p Point) IsInSubgroup() bool { return p.inner.InSubGroup() }

// Add returns p + q.
func (p Point) Add(q Point) Point {
	var r babyjub.Point
	r.Add(&p.inner, &q.inner)
	return Point{inner: r}
}

// Double returns p + p.
func (p Point) Double() Point { return p.Add(p) }

// ScalarMul returns s*p using babyjub's constant-time windowed ladder. s is
// taken as an arbitrary big.Int; callers that require a canonical scalar in
// [0, l) should reduce it first via Mod(SubgroupOrder).
func (p Point) ScalarMul(s *big.Int) Point {
	var r babyjub.Point
	r.Mul(s, &p.inner)
	return Point{inner: r}
}

// Equal reports whether p and q are the same point.
func (p Point) Equal(q Point) bool { return p.inner.Equal(&q.inner) }

// Neg returns the additive inverse of p. On a twisted Edwards curve this is
// simply the point with x negated modulo the base field prime.
func (p Point) Neg() Point {
	negX := field.FromBigInt(p.inner.X).Neg()
	return FromXY(negX, field.FromBigInt(p.inner.Y))
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return p.Add(q.Neg()) }

// DerivePublicKey computes sk*G, the public key for a spending key.
func DerivePublicKey(sk *big.Int) Point {
	return Generator().ScalarMul(sk)
}

// DecodeXY parses (x, y) bytes into a validated, subgroup-checked point.
func DecodeXY(x, y [32]byte) (Point, error) {
	xe, err1 := field.FromBytesBE(x[:])
	ye, err2 := field.FromBytesBE(y[:])
	if err1 != nil || err2 != nil {
		return Point{}, ErrOffCurve
	}
	p := FromXY(xe, ye)
	if !p.IsOnCurve() || !p.IsInSubgroup() {
		return Point{}, ErrOffCurve
	}
	return p, nil
}

// RandomScalar draws a uniform scalar in [1, SubgroupOrder).
func RandomScalar() (*big.Int, error) {
	for {
		s, err := randomBigInt(SubgroupOrder)
		if err != nil {
			return nil, err
		}
		if s.Sign() != 0 {
			return s, nil
		}
	}
}
