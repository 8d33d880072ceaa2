// Package note implements the three shielded note variants, their
// commitments, and spending/action nullifier derivation (spec §3, §4.C,
// §4.D). Notes are immutable once constructed; there is no in-place
// mutation anywhere in this package.
package note

import (
	"crypto/rand"
	"errors"

	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/poseidon"
)

// ErrUnknownVariant is returned when a note carries a variant tag this
// package does not recognize.
var ErrUnknownVariant = errors.New("note: unknown variant")

// ErrMissingLeafIndex is returned by SpendNullifier when no leaf index is
// supplied; the spec forbids ever emitting a spending nullifier unbound to
// a leaf position (§4.D).
var ErrMissingLeafIndex = errors.New("note: spending nullifier requires a leaf index")

// Variant tags the three note kinds a commitment can encode.
type Variant int

const (
	VariantFungible Variant = iota
	VariantPosition
	VariantLP
)

// Note is the tagged-union interface every variant satisfies, per the
// re-architecture note in spec §9 ("union-typed values... model as a
// tagged sum with per-variant commitment and decryption routines").
type Note interface {
	Variant() Variant
	Commitment() (field.Element, error)
	StealthPub() field.Element
}

// Randomness draws a fresh 32-byte field element from a CSPRNG. The spec
// requires this never be reused across commitments (§4.C); callers must
// call it once per note construction.
func Randomness() (field.Element, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return field.Element{}, err
	}
	// Reduce rather than reject: a raw 32-byte draw only exceeds p with
	// negligible probability, and reduction keeps the draw total.
	return field.ReduceBytes(buf[:]), nil
}

// Fungible is the simplest variant: a token amount under a stealth owner.
type Fungible struct {
	StealthPubX field.Element
	TokenMint   field.Element // already reduced mod p, per spec §4.C
	Amount      uint64
	Rand        field.Element
}

func (n Fungible) Variant() Variant         { return VariantFungible }
func (n Fungible) StealthPub() field.Element { return n.StealthPubX }

// Commitment computes H(COMMIT_FUNGIBLE, stealth_pub_x, mint, amount, randomness).
func (n Fungible) Commitment() (field.Element, error) {
	return poseidon.HashWithDomain(poseidon.DomainCommitFungible,
		n.StealthPubX, n.TokenMint, field.FromUint64(n.Amount), n.Rand)
}

// Position is a perpetual futures-style note.
type Position struct {
	StealthPubX field.Element
	MarketID    field.Element
	IsLong      bool
	Margin      uint64
	Size        uint64
	Leverage    uint16
	EntryPrice  uint64
	Rand        field.Element
}

func (n Position) Variant() Variant          { return VariantPosition }
func (n Position) StealthPub() field.Element { return n.StealthPubX }

// packDirectionLeverage packs is_long into bit 0 and leverage into bits
// 1-16, per spec §4.C's pack(is_long, leverage).
func packDirectionLeverage(isLong bool, leverage uint16) uint64 {
	var v uint64
	if isLong {
		v = 1
	}
	return v | (uint64(leverage) << 1)
}

// Commitment computes
// H(COMMIT_POSITION, stealth_pub_x, market_id, pack(is_long, leverage), margin, size, entry_price, randomness).
func (n Position) Commitment() (field.Element, error) {
	packed := field.FromUint64(packDirectionLeverage(n.IsLong, n.Leverage))
	return poseidon.HashWithDomain(poseidon.DomainCommitPosition,
		n.StealthPubX, n.MarketID, packed,
		field.FromUint64(n.Margin), field.FromUint64(n.Size),
		field.FromUint64(n.EntryPrice), n.Rand)
}

// LP is a liquidity-share note.
type LP struct {
	StealthPubX field.Element
	PoolID      field.Element // reduced mod p, per spec §4.C
	LPAmount    uint64
	Rand        field.Element
}

func (n LP) Variant() Variant          { return VariantLP }
func (n LP) StealthPub() field.Element { return n.StealthPubX }

// Commitment computes H(COMMIT_LP, stealth_pub_x, pool_id, lp_amount, randomness).
func (n LP) Commitment() (field.Element, error) {
	return poseidon.HashWithDomain(poseidon.DomainCommitLP,
		n.StealthPubX, n.PoolID, field.FromUint64(n.LPAmount), n.Rand)
}

// NullifierKey derives nk = H(NULLIFIER_KEY, sk, 0) from a spending key.
func NullifierKey(sk field.Element) (field.Element, error) {
	return poseidon.HashWithDomain(poseidon.DomainNullifierKey, sk, field.Zero())
}

// SpendNullifier derives N_spend = H(SPEND_NULL, nk, commitment, leaf_index).
// leafIndexSet must be true; see ErrMissingLeafIndex.
func SpendNullifier(nk, commitment field.Element, leafIndex uint64, leafIndexSet bool) (field.Element, error) {
	if !leafIndexSet {
		return field.Element{}, ErrMissingLeafIndex
	}
	return poseidon.HashWithDomain(poseidon.DomainSpendNull, nk, commitment, field.FromUint64(leafIndex))
}

// ActionNullifier derives N_action = H(ACTION_NULL, nk, commitment, action_domain),
// spent per-action (e.g. one vote per proposal) without consuming the note.
func ActionNullifier(nk, commitment, actionDomain field.Element) (field.Element, error) {
	return poseidon.HashWithDomain(poseidon.DomainActionNull, nk, commitment, actionDomain)
}
