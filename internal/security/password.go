// Package security implements password hashing, session token issuance,
// and supporting primitives. Hash verification is constant-time and the
// package exposes a dummy hash so callers can burn the same CPU on
// lookups that miss.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	hashAlgorithm  = "pbkdf2_sha256"
	hashIterations = 120000
	saltBytes      = 16
	keyBytes       = 32
)

// HashPassword derives a salted PBKDF2-SHA256 hash of the password. The
// result is self-describing: algorithm, iteration count, and salt travel
// with the hash, so stored credentials survive parameter changes.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, errRead := rand.Read(salt); errRead != nil {
		return "", fmt.Errorf("security: generate salt: %w", errRead)
	}
	key := pbkdf2.Key([]byte(password), salt, hashIterations, keyBytes, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		hashAlgorithm,
		hashIterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether the password matches the stored hash.
// Comparison is constant-time; a malformed hash verifies false.
func VerifyPassword(stored, password string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != hashAlgorithm {
		return false
	}
	iterations, errParse := strconv.Atoi(parts[1])
	if errParse != nil || iterations < 1 {
		return false
	}
	salt, errSalt := base64.RawStdEncoding.DecodeString(parts[2])
	if errSalt != nil {
		return false
	}
	want, errHash := base64.RawStdEncoding.DecodeString(parts[3])
	if errHash != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// dummyHash is verified against when a login names an unknown account,
// keeping the response time indistinguishable from a real mismatch.
var dummyHash = mustDummyHash()

func mustDummyHash() string {
	hash, errHash := HashPassword("dummy-password-for-timing")
	if errHash != nil {
		panic(fmt.Sprintf("security: build dummy hash: %v", errHash))
	}
	return hash
}

// DummyHash returns a valid hash of an unguessable throwaway password.
func DummyHash() string {
	return dummyHash
}
