package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// pairingCodeDigits is the length of the short code a user types into
// the companion app during pairing.
const pairingCodeDigits = 6

// GeneratePairingCode returns a zero-padded 6-digit numeric code from
// a cryptographic source.
func GeneratePairingCode() (string, error) {
	bound := big.NewInt(1)
	for range pairingCodeDigits {
		bound.Mul(bound, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	return fmt.Sprintf("%0*d", pairingCodeDigits, n), nil
}
