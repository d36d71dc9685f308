package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateRandomString returns a URL-safe random string carrying at
// least byteLen bytes of entropy.
func GenerateRandomString(byteLen int) (string, error) {
	if byteLen < 1 {
		byteLen = 32
	}
	buf := make([]byte, byteLen)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("security: generate random string: %w", errRead)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
