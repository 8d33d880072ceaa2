package curve

import (
	"crypto/rand"
	"math/big"
)

// randomBigInt draws a uniform value in [0, max) via rejection sampling,
// the same approach m1zr-ccoin's pedersen.go uses for its blinders.
func randomBigInt(max *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, max)
}
