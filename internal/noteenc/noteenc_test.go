package noteenc_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/curve"
	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/note"
	"github.com/ccoin/shieldengine/internal/noteenc"
)

// Scenario 1: encrypt/decrypt a fungible note, spec §8.
func TestScenario1EncryptDecryptFungibleNote(t *testing.T) {
	sk := big.NewInt(123)
	P := curve.DerivePublicKey(sk)

	n := note.Fungible{
		StealthPubX: P.X(),
		TokenMint:   field.FromUint64(1000),
		Amount:      500,
		Rand:        field.FromUint64(111),
	}

	wire, err := noteenc.Encrypt(P, n)
	require.NoError(t, err)

	decrypted, err := noteenc.Decrypt(sk, wire)
	require.NoError(t, err)
	require.Equal(t, n, decrypted)

	_, err = noteenc.Decrypt(big.NewInt(124), wire)
	require.ErrorIs(t, err, noteenc.ErrDecryptFailed)
}

func TestTryDecryptAnyRejectsWrongCommitment(t *testing.T) {
	sk := big.NewInt(5)
	P := curve.DerivePublicKey(sk)

	n := note.LP{
		StealthPubX: P.X(),
		PoolID:      field.FromUint64(77),
		LPAmount:    42,
		Rand:        field.FromUint64(9),
	}
	wire, err := noteenc.Encrypt(P, n)
	require.NoError(t, err)

	_, err = noteenc.TryDecryptAny(sk, wire, field.FromUint64(1))
	require.ErrorIs(t, err, noteenc.ErrDecryptFailed)

	c, err := n.Commitment()
	require.NoError(t, err)
	got, err := noteenc.TryDecryptAny(sk, wire, c)
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestEncryptDecryptPositionNote(t *testing.T) {
	sk := big.NewInt(314)
	P := curve.DerivePublicKey(sk)

	n := note.Position{
		StealthPubX: P.X(),
		MarketID:    field.FromUint64(1),
		IsLong:      true,
		Margin:      1000,
		Size:        5000,
		Leverage:    20,
		EntryPrice:  30000,
		Rand:        field.FromUint64(55),
	}

	wire, err := noteenc.Encrypt(P, n)
	require.NoError(t, err)

	got, err := noteenc.Decrypt(sk, wire)
	require.NoError(t, err)
	require.Equal(t, n, got)
}
