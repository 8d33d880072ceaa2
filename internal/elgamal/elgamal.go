// Package elgamal implements ElGamal encryption over BabyJubJub with
// homomorphic addition, three-option ballots, and DLEQ-proved threshold
// decryption (spec §4.G). Encrypt/Add are grounded on wyf-ACCEPT-eth2030's
// pkg/core/vm/shielded_crypto.go ElGamalEncrypt/ElGamalDecrypt, lifted from
// a toy scalar group onto BabyJubJub; threshold combination is grounded on
// pkg/crypto/threshold.go's Feldman-VSS / Lagrange-in-the-exponent design.
package elgamal

import (
	"errors"
	"math/big"

	"github.com/ccoin/shieldengine/internal/curve"
	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/poseidon"
)

// ErrInsufficientShares is returned by Combine when fewer than t valid
// shares remain after DLEQ verification.
var ErrInsufficientShares = errors.New("elgamal: insufficient valid shares")

// ErrInvalidProof is returned when a DLEQ proof fails to verify.
var ErrInvalidProof = errors.New("elgamal: invalid DLEQ proof")

// Ciphertext is an ElGamal ciphertext (c1, c2) = (r*G, m*G + r*Y).
type Ciphertext struct {
	C1 curve.Point
	C2 curve.Point
}

// Encrypt encrypts message m (a field element, treated as a scalar in the
// exponent) under election key Y with randomness r.
func Encrypt(Y curve.Point, m field.Element, r *big.Int) Ciphertext {
	G := curve.Generator()
	c1 := G.ScalarMul(r)
	mG := G.ScalarMul(m.BigInt())
	rY := Y.ScalarMul(r)
	c2 := mG.Add(rY)
	return Ciphertext{C1: c1, C2: c2}
}

// Add returns the pointwise homomorphic sum of two ciphertexts.
func Add(a, b Ciphertext) Ciphertext {
	return Ciphertext{C1: a.C1.Add(b.C1), C2: a.C2.Add(b.C2)}
}

// Ballot encodes a voter's power across three mutually-exclusive options:
// the chosen option's ciphertext encrypts power, the other two encrypt 0.
type Ballot struct {
	Options [3]Ciphertext
}

// NewBallot builds a ballot casting power for option (0, 1, or 2), drawing
// independent randomness for each of the three encryptions.
func NewBallot(Y curve.Point, option int, power uint64, randoms [3]*big.Int) (Ballot, error) {
	if option < 0 || option > 2 {
		return Ballot{}, errors.New("elgamal: option out of range")
	}
	var b Ballot
	for i := 0; i < 3; i++ {
		var m field.Element
		if i == option {
			m = field.FromUint64(power)
		} else {
			m = field.Zero()
		}
		b.Options[i] = Encrypt(Y, m, randoms[i])
	}
	return b, nil
}

// Tally sums ballots pointwise per option.
func Tally(ballots []Ballot) [3]Ciphertext {
	var out [3]Ciphertext
	out[0] = Ciphertext{C1: curve.Identity(), C2: curve.Identity()}
	out[1] = out[0]
	out[2] = out[0]
	for _, b := range ballots {
		for i := 0; i < 3; i++ {
			out[i] = Add(out[i], b.Options[i])
		}
	}
	return out
}

// DecryptionShare is a single committee member's partial decryption of a
// ciphertext's c1 component, with a DLEQ proof it used its real key share.
type DecryptionShare struct {
	Index int
	D     curve.Point // y_i * c1
	Proof DLEQProof
}

// DLEQProof proves log_G(Y_i) = log_c1(D_i) via Fiat-Shamir over the
// Poseidon sponge with domain MAC (spec §4.G).
type DLEQProof struct {
	Challenge field.Element
	Response  *big.Int
}

// ProveDLEQ proves that committer knows yi such that Yi = yi*G and
// D = yi*c1, without revealing yi.
func ProveDLEQ(yi *big.Int, Yi, c1, D curve.Point) (DLEQProof, error) {
	k, err := curve.RandomScalar()
	if err != nil {
		return DLEQProof{}, err
	}
	t1 := curve.Generator().ScalarMul(k)
	t2 := c1.ScalarMul(k)

	c, err := fiatShamirChallenge(Yi, D, t1, t2)
	if err != nil {
		return DLEQProof{}, err
	}

	// response = k + c*yi mod l
	cBig := c.Mod(curve.SubgroupOrder)
	resp := new(big.Int).Mul(cBig, yi)
	resp.Add(resp, k)
	resp.Mod(resp, curve.SubgroupOrder)

	return DLEQProof{Challenge: c, Response: resp}, nil
}

// VerifyDLEQ verifies a proof produced by ProveDLEQ.
func VerifyDLEQ(Yi, c1, D curve.Point, proof DLEQProof) (bool, error) {
	cBig := proof.Challenge.Mod(curve.SubgroupOrder)

	// t1' = s*G - c*Yi
	sG := curve.Generator().ScalarMul(proof.Response)
	cYi := Yi.ScalarMul(cBig)
	t1 := sG.Sub(cYi)

	// t2' = s*c1 - c*D
	sC1 := c1.ScalarMul(proof.Response)
	cD := D.ScalarMul(cBig)
	t2 := sC1.Sub(cD)

	expected, err := fiatShamirChallenge(Yi, D, t1, t2)
	if err != nil {
		return false, err
	}
	return expected.Equal(proof.Challenge), nil
}

func fiatShamirChallenge(Yi, D, t1, t2 curve.Point) (field.Element, error) {
	return poseidon.HashWithDomain(poseidon.DomainMAC, Yi.X(), D.X(), t1.X(), t2.X())
}

// Combine reconstructs m*G from c2 and t valid decryption shares, using
// Lagrange interpolation in the exponent over indices present in shares.
// Shares failing DLEQ verification are dropped; if fewer than t remain,
// Combine returns ErrInsufficientShares.
func Combine(c2 curve.Point, shares []DecryptionShare, publicShares map[int]curve.Point, c1 curve.Point, t int) (curve.Point, error) {
	valid := make([]DecryptionShare, 0, len(shares))
	for _, s := range shares {
		Yi, ok := publicShares[s.Index]
		if !ok {
			continue
		}
		ok2, err := VerifyDLEQ(Yi, c1, s.D, s.Proof)
		if err != nil || !ok2 {
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) < t {
		return curve.Point{}, ErrInsufficientShares
	}
	valid = valid[:t]

	indices := make([]int, len(valid))
	for i, s := range valid {
		indices[i] = s.Index
	}

	sum := curve.Identity()
	for _, s := range valid {
		lambda := lagrangeCoefficient(indices, s.Index, curve.SubgroupOrder)
		sum = sum.Add(s.D.ScalarMul(lambda))
	}

	// m*G = c2 - sum(lambda_i * D_i)
	mG := c2.Sub(sum)
	return mG, nil
}

// lagrangeCoefficient computes lambda_i = prod_{j != i} (0 - j) / (i - j) mod m,
// the weight applied to share i when reconstructing the secret at x = 0.
func lagrangeCoefficient(indices []int, i int, m *big.Int) *big.Int {
	num := big.NewInt(1)
	den := big.NewInt(1)
	for _, j := range indices {
		if j == i {
			continue
		}
		// numerator term: (0 - j) mod m
		termNum := big.NewInt(int64(-j))
		termNum.Mod(termNum, m)
		num.Mul(num, termNum)
		num.Mod(num, m)

		// denominator term: (i - j) mod m
		termDen := big.NewInt(int64(i - j))
		termDen.Mod(termDen, m)
		den.Mul(den, termDen)
		den.Mod(den, m)
	}
	denInv := new(big.Int).ModInverse(den, m)
	lambda := new(big.Int).Mul(num, denInv)
	lambda.Mod(lambda, m)
	return lambda
}

// RecoverDiscreteLog searches for x in [0, maxRange] such that x*G == target,
// per spec §4.G's "linear search or baby-step giant-step as an
// implementation freedom". Baby-step giant-step is used here for committees
// with a non-trivial electorate total.
func RecoverDiscreteLog(target curve.Point, maxRange uint64) (uint64, bool) {
	if maxRange == 0 {
		if target.Equal(curve.Identity()) {
			return 0, true
		}
		return 0, false
	}

	m := uint64(isqrt(maxRange)) + 1
	G := curve.Generator()

	// baby steps: table of j*G for j in [0, m)
	table := make(map[string]uint64, m)
	acc := curve.Identity()
	for j := uint64(0); j < m; j++ {
		table[pointKey(acc)] = j
		acc = acc.Add(G)
	}

	// giant steps: target - i*m*G for i in [0, m)
	mG := G.ScalarMul(new(big.Int).SetUint64(m))
	negMG := mG.Neg()

	gamma := target
	for i := uint64(0); i < m; i++ {
		if j, ok := table[pointKey(gamma)]; ok {
			x := i*m + j
			if x <= maxRange {
				return x, true
			}
		}
		gamma = gamma.Add(negMG)
	}
	return 0, false
}

func pointKey(p curve.Point) string {
	x := p.X().ToBytesBE()
	y := p.Y().ToBytesBE()
	return string(x[:]) + string(y[:])
}

func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
