// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package tokens generates opaque random tokens and their storage hashes.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Length is the number of random bytes in a token.
const Length = 32

// Generate creates a new token valid for ttl.
// Returns (plaintext token, SHA256 hash for storage, expiry time, error).
func Generate(ttl time.Duration) (string, string, time.Time, error) {
	bytes := make([]byte, Length)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plaintext := hex.EncodeToString(bytes)
	return plaintext, Hash(plaintext), time.Now().UTC().Add(ttl), nil
}

// Hash computes the SHA256 hash of a token.
func Hash(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
