// Package field implements BN254 scalar field arithmetic for the shielded
// engine. Every note field, commitment, and hash input lives in this field.
package field

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrMalformedField is returned when a byte string does not encode a
// canonical field element (value >= p, or wrong length).
var ErrMalformedField = errors.New("field: malformed input")

// Modulus is the BN254 scalar field prime p.
var Modulus = fr.Modulus()

// Element is a value modulo the BN254 scalar field prime.
type Element struct {
	inner fr.Element
}

// Zero returns the additive identity.
func Zero() Element { return Element{} }

// One returns the multiplicative identity.
func One() Element {
	var e Element
	e.inner.SetOne()
	return e
}

// FromUint64 builds an Element from a small unsigned integer.
func FromUint64(v uint64) Element {
	var e Element
	e.inner.SetUint64(v)
	return e
}

// FromBigInt reduces an arbitrary big.Int modulo p.
func FromBigInt(v *big.Int) Element {
	var e Element
	e.inner.SetBigInt(v)
	return e
}

// FromBytesBE decodes 32 big-endian bytes into a field element. Bytes
// encoding a value >= p are rejected per the spec's canonical-encoding rule.
func FromBytesBE(b []byte) (Element, error) {
	if len(b) != 32 {
		return Element{}, ErrMalformedField
	}
	var e Element
	bi := new(big.Int).SetBytes(b)
	if bi.Cmp(Modulus) >= 0 {
		return Element{}, ErrMalformedField
	}
	e.inner.SetBigInt(bi)
	return e, nil
}

// ToBytesBE encodes the element as 32 big-endian bytes, zero-padded.
func (e Element) ToBytesBE() [32]byte {
	bi := e.inner.BigInt(new(big.Int))
	var out [32]byte
	bi.FillBytes(out[:])
	return out
}

// ReduceBytes reduces an arbitrary-length byte string modulo p, used for
// mints and pool ids per spec §4.C ("reducing their 32 raw bytes modulo p").
func ReduceBytes(b []byte) Element {
	var e Element
	bi := new(big.Int).SetBytes(b)
	e.inner.SetBigInt(bi)
	return e
}

// Add returns e + other.
func (e Element) Add(other Element) Element {
	var r Element
	r.inner.Add(&e.inner, &other.inner)
	return r
}

// Sub returns e - other.
func (e Element) Sub(other Element) Element {
	var r Element
	r.inner.Sub(&e.inner, &other.inner)
	return r
}

// Mul returns e * other.
func (e Element) Mul(other Element) Element {
	var r Element
	r.inner.Mul(&e.inner, &other.inner)
	return r
}

// Inverse returns the multiplicative inverse of e. Panics on zero, matching
// the precondition that callers never invert the identity.
func (e Element) Inverse() Element {
	var r Element
	if e.inner.IsZero() {
		panic("field: inverse of zero")
	}
	r.inner.Inverse(&e.inner)
	return r
}

// Neg returns -e.
func (e Element) Neg() Element {
	var r Element
	r.inner.Neg(&e.inner)
	return r
}

// IsZero reports whether e is the additive identity.
func (e Element) IsZero() bool { return e.inner.IsZero() }

// Equal reports whether e and other are the same field element.
func (e Element) Equal(other Element) bool { return e.inner.Equal(&other.inner) }

// BigInt returns e as a big.Int in [0, p).
func (e Element) BigInt() *big.Int { return e.inner.BigInt(new(big.Int)) }

// Mod reduces e's underlying integer modulo m and returns the result as a
// big.Int, used where a scalar must be taken modulo the subgroup order l
// rather than the field prime p (e.g. stealth factors, §4.E).
func (e Element) Mod(m *big.Int) *big.Int {
	bi := e.inner.BigInt(new(big.Int))
	return new(big.Int).Mod(bi, m)
}

// String renders the decimal representation, used by the persisted-cache
// export format (§6: "big-ints become decimal strings").
func (e Element) String() string { return e.inner.BigInt(new(big.Int)).String() }
