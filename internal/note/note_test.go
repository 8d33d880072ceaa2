package note_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/curve"
	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/note"
	"github.com/ccoin/shieldengine/internal/poseidon"
)

// Scenario 3: commitment/nullifier, spec §8.
func TestScenario3CommitmentNullifier(t *testing.T) {
	P := curve.DerivePublicKey(big.NewInt(123))
	n := note.Fungible{
		StealthPubX: P.X(),
		TokenMint:   field.FromUint64(1000),
		Amount:      500,
		Rand:        field.FromUint64(111),
	}

	C, err := n.Commitment()
	require.NoError(t, err)

	wantC, err := poseidon.HashWithDomain(poseidon.DomainCommitFungible, P.X(), field.FromUint64(1000), field.FromUint64(500), field.FromUint64(111))
	require.NoError(t, err)
	require.True(t, C.Equal(wantC))

	nk, err := note.NullifierKey(field.FromUint64(123))
	require.NoError(t, err)

	N5, err := note.SpendNullifier(nk, C, 5, true)
	require.NoError(t, err)

	N6, err := note.SpendNullifier(nk, C, 6, true)
	require.NoError(t, err)

	require.False(t, N5.Equal(N6))
}

func TestSpendNullifierRequiresLeafIndex(t *testing.T) {
	nk, err := note.NullifierKey(field.FromUint64(123))
	require.NoError(t, err)
	_, err = note.SpendNullifier(nk, field.Zero(), 0, false)
	require.ErrorIs(t, err, note.ErrMissingLeafIndex)
}

// leaf_index = 0 and leaf_index = 2^63-1 both produce valid nullifiers (spec §8 boundary).
func TestSpendNullifierBoundaryLeafIndices(t *testing.T) {
	nk, err := note.NullifierKey(field.FromUint64(7))
	require.NoError(t, err)
	c := field.FromUint64(42)

	n0, err := note.SpendNullifier(nk, c, 0, true)
	require.NoError(t, err)
	require.False(t, n0.IsZero())

	nMax, err := note.SpendNullifier(nk, c, 1<<63-1, true)
	require.NoError(t, err)
	require.False(t, nMax.IsZero())
	require.False(t, n0.Equal(nMax))
}

func TestActionNullifierIndependentOfSpendNullifier(t *testing.T) {
	nk, err := note.NullifierKey(field.FromUint64(7))
	require.NoError(t, err)
	c := field.FromUint64(42)

	spend, err := note.SpendNullifier(nk, c, 3, true)
	require.NoError(t, err)

	action, err := note.ActionNullifier(nk, c, field.FromUint64(99))
	require.NoError(t, err)

	require.False(t, spend.Equal(action))
}

func TestPositionCommitmentPacksDirectionAndLeverage(t *testing.T) {
	long := note.Position{
		StealthPubX: field.FromUint64(1),
		MarketID:    field.FromUint64(2),
		IsLong:      true,
		Margin:      100,
		Size:        1000,
		Leverage:    10,
		EntryPrice:  50000,
		Rand:        field.FromUint64(3),
	}
	short := long
	short.IsLong = false

	cLong, err := long.Commitment()
	require.NoError(t, err)
	cShort, err := short.Commitment()
	require.NoError(t, err)
	require.False(t, cLong.Equal(cShort))
}
