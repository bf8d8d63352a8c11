// Package utils provides helpers for one-time login codes.
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// LoginCodeDigits is the length of an emailed login code.
const LoginCodeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// NewLoginCode returns a zero-padded numeric code from a cryptographically
// secure source.
func NewLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", LoginCodeDigits, n.Int64()), nil
}
