package elgamal_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/curve"
	"github.com/ccoin/shieldengine/internal/elgamal"
	"github.com/ccoin/shieldengine/internal/field"
)

// ElGamal homomorphism: decrypt(Enc(m1,r1) + Enc(m2,r2)) = m1+m2, verified
// here by discrete-log recovery over a small range.
func TestHomomorphicAddition(t *testing.T) {
	y, _ := curve.RandomScalar()
	Y := curve.Generator().ScalarMul(y)

	r1, _ := curve.RandomScalar()
	r2, _ := curve.RandomScalar()

	m1 := field.FromUint64(7)
	m2 := field.FromUint64(13)

	c1 := elgamal.Encrypt(Y, m1, r1)
	c2 := elgamal.Encrypt(Y, m2, r2)
	sum := elgamal.Add(c1, c2)

	// decrypt directly with the full secret key for this homomorphism check.
	rY := sum.C1.ScalarMul(y)
	mG := sum.C2.Sub(rY)

	got, ok := elgamal.RecoverDiscreteLog(mG, 100)
	require.True(t, ok)
	require.Equal(t, uint64(20), got)
}

func TestBallotTallyHomomorphic(t *testing.T) {
	y, _ := curve.RandomScalar()
	Y := curve.Generator().ScalarMul(y)

	r := [3][3]*big.Int{}
	for i := range r {
		for j := range r[i] {
			r[i][j], _ = curve.RandomScalar()
		}
	}

	b1, err := elgamal.NewBallot(Y, 0, 5, r[0])
	require.NoError(t, err)
	b2, err := elgamal.NewBallot(Y, 0, 3, r[1])
	require.NoError(t, err)
	b3, err := elgamal.NewBallot(Y, 1, 9, r[2])
	require.NoError(t, err)

	tally := elgamal.Tally([]elgamal.Ballot{b1, b2, b3})

	rY0 := tally[0].C1.ScalarMul(y)
	mG0 := tally[0].C2.Sub(rY0)
	got0, ok := elgamal.RecoverDiscreteLog(mG0, 100)
	require.True(t, ok)
	require.Equal(t, uint64(8), got0)

	rY1 := tally[1].C1.ScalarMul(y)
	mG1 := tally[1].C2.Sub(rY1)
	got1, ok := elgamal.RecoverDiscreteLog(mG1, 100)
	require.True(t, ok)
	require.Equal(t, uint64(9), got1)
}

func TestDLEQProveVerify(t *testing.T) {
	yi, _ := curve.RandomScalar()
	Yi := curve.Generator().ScalarMul(yi)

	r, _ := curve.RandomScalar()
	c1 := curve.Generator().ScalarMul(r)
	D := c1.ScalarMul(yi)

	proof, err := elgamal.ProveDLEQ(yi, Yi, c1, D)
	require.NoError(t, err)

	ok, err := elgamal.VerifyDLEQ(Yi, c1, D, proof)
	require.NoError(t, err)
	require.True(t, ok)

	// Tampering with D invalidates the proof.
	bogusD := D.Add(curve.Generator())
	ok, err = elgamal.VerifyDLEQ(Yi, c1, bogusD, proof)
	require.NoError(t, err)
	require.False(t, ok)
}

// Threshold decryption: a 2-of-2 Shamir-shared secret combines back to the
// same plaintext a direct decryption would produce.
func TestThresholdCombine(t *testing.T) {
	l := curve.SubgroupOrder
	y0, _ := curve.RandomScalar() // the committee's combined secret key
	a1, _ := curve.RandomScalar() // degree-1 polynomial coefficient

	share := func(i int64) *big.Int {
		s := new(big.Int).Mul(a1, big.NewInt(i))
		s.Add(s, y0)
		s.Mod(s, l)
		return s
	}

	Y := curve.Generator().ScalarMul(y0)
	share1, share2 := share(1), share(2)
	Y1 := curve.Generator().ScalarMul(share1)
	Y2 := curve.Generator().ScalarMul(share2)

	r, _ := curve.RandomScalar()
	m := field.FromUint64(42)
	ct := elgamal.Encrypt(Y, m, r)

	D1 := ct.C1.ScalarMul(share1)
	D2 := ct.C1.ScalarMul(share2)

	proof1, err := elgamal.ProveDLEQ(share1, Y1, ct.C1, D1)
	require.NoError(t, err)
	proof2, err := elgamal.ProveDLEQ(share2, Y2, ct.C1, D2)
	require.NoError(t, err)

	shares := []elgamal.DecryptionShare{
		{Index: 1, D: D1, Proof: proof1},
		{Index: 2, D: D2, Proof: proof2},
	}
	publicShares := map[int]curve.Point{1: Y1, 2: Y2}

	mG, err := elgamal.Combine(ct.C2, shares, publicShares, ct.C1, 2)
	require.NoError(t, err)

	got, ok := elgamal.RecoverDiscreteLog(mG, 1000)
	require.True(t, ok)
	require.Equal(t, uint64(42), got)
}

func TestCombineRejectsInsufficientShares(t *testing.T) {
	_, err := elgamal.Combine(curve.Identity(), nil, map[int]curve.Point{}, curve.Identity(), 2)
	require.ErrorIs(t, err, elgamal.ErrInsufficientShares)
}

func TestRecoverDiscreteLogZeroRange(t *testing.T) {
	got, ok := elgamal.RecoverDiscreteLog(curve.Identity(), 0)
	require.True(t, ok)
	require.Zero(t, got)
}
