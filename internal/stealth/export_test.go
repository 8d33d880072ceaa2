package stealth

import "math/big"

// SendWithScalar exposes sendWithScalar to external tests that need to pin
// the ephemeral draw to check Send's derivation against literal vectors.
func SendWithScalar(recipientPub Point, e *big.Int) (SendResult, error) {
	return sendWithScalar(recipientPub, e)
}
