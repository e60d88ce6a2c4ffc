// Package ident generates the random identifiers used for stored file
// names, delete keys, short-link codes, and token secrets.
package ident

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet is the URL-friendly character set identifiers are drawn from.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Generate produces a random string of the given length. Every character is
// drawn uniformly and independently from Alphabet using crypto/rand, so two
// identifiers minted for the same record never derive from one another.
// Uniqueness is not checked here; callers retry on storage-level collisions.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("identifier length must be positive, got %d", length)
	}

	result := make([]byte, length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		result[i] = Alphabet[n.Int64()]
	}
	return string(result), nil
}
