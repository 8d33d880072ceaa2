// Package stealth implements one-time stealth address derivation (spec
// §4.E), grounded on the ECDH-shared-secret pattern wyf-ACCEPT-eth2030's
// shielded_crypto.go uses for ElGamal, adapted here to BabyJubJub scalar
// multiplication instead of a generic toy group.
package stealth

import (
	"math/big"

	"github.com/ccoin/shieldengine/internal/curve"
	"github.com/ccoin/shieldengine/internal/poseidon"
)

// SendResult carries what the sender publishes alongside a commitment
// leaf: the stealth pubkey and the ephemeral point.
type SendResult struct {
	StealthPub Point
	Ephemeral  Point
}

// Point is a re-export alias kept local to this package's call sites so
// callers don't need to import internal/curve just to name the type.
type Point = curve.Point

// Send derives a one-time stealth destination for recipientPub, per
// spec §4.E steps 1-3. The ephemeral scalar e is drawn internally.
func Send(recipientPub Point) (SendResult, error) {
	e, err := curve.RandomScalar()
	if err != nil {
		return SendResult{}, err
	}
	return sendWithScalar(recipientPub, e)
}

func sendWithScalar(recipientPub Point, e *big.Int) (SendResult, error) {
	E := curve.Generator().ScalarMul(e)
	S := recipientPub.ScalarMul(e)
	f, err := stealthFactor(S)
	if err != nil {
		return SendResult{}, err
	}
	stealthPub := recipientPub.Add(curve.Generator().ScalarMul(f))
	return SendResult{StealthPub: stealthPub, Ephemeral: E}, nil
}

// Receive recomputes the stealth spending key for a recipient holding sk,
// given the ephemeral point published alongside the leaf. A zero ephemeral
// (curve.Identity()) means "use sk unchanged", per spec §4.E.
func Receive(sk *big.Int, ephemeral Point) (*big.Int, error) {
	if ephemeral.Equal(curve.Identity()) {
		return new(big.Int).Set(sk), nil
	}
	S := ephemeral.ScalarMul(sk)
	f, err := stealthFactor(S)
	if err != nil {
		return nil, err
	}
	skPrime := new(big.Int).Add(sk, f)
	skPrime.Mod(skPrime, curve.SubgroupOrder)
	return skPrime, nil
}

// stealthFactor computes f = H(STEALTH_FACTOR, S.x) mod l.
func stealthFactor(S Point) (*big.Int, error) {
	h, err := poseidon.HashWithDomain(poseidon.DomainStealthFactor, S.X())
	if err != nil {
		return nil, err
	}
	return h.Mod(curve.SubgroupOrder), nil
}
