package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// KeyPrefix marks every issued API key. The remainder is 32 random bytes,
// hex encoded.
const KeyPrefix = "sk_mem_"

const keyRandomBytes = 32

func GenerateAPIKey() (string, error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// GenerateSessionToken returns an unguessable opaque bearer token (256 bits).
func GenerateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// MaskKey hides all but the last 8 characters for listing. The full value is
// shown exactly once, at creation.
func MaskKey(key string) string {
	const revealed = 8
	if len(key) <= revealed {
		return "****"
	}
	return "****" + key[len(key)-revealed:]
}
