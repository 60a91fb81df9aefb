// Package id generates the Stripe-style prefixed identifiers used for
// accounts.
package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Base62 alphabet: 0-9, A-Z, a-z
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// DefaultLength is the default length for generated short IDs
	DefaultLength = 12

	// PrefixAccount marks account IDs ("acct_xK9mP2vL3nQ")
	PrefixAccount = "acct"
)

// Generate creates a cryptographically random Base62 string of the given
// length. A non-positive length uses DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	result := make([]byte, length)
	alphabetLen := big.NewInt(int64(len(alphabet)))

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = alphabet[num.Int64()]
	}

	return string(result), nil
}

// NewAccountID generates a new prefixed account ID.
func NewAccountID() (string, error) {
	short, err := Generate(DefaultLength)
	if err != nil {
		return "", err
	}
	return PrefixAccount + "_" + short, nil
}

// IsAccountID reports whether s has the shape of an account ID. Usernames
// never match because they cannot contain the prefix separator.
func IsAccountID(s string) bool {
	short, ok := strings.CutPrefix(s, PrefixAccount+"_")
	if !ok || short == "" {
		return false
	}
	for i := 0; i < len(short); i++ {
		if strings.IndexByte(alphabet, short[i]) < 0 {
			return false
		}
	}
	return true
}
