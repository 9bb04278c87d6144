package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength   = 16
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// hashPassword derives an argon2id key for password under a fresh random
// salt. Both values are returned hex encoded.
func hashPassword(password string) (hash string, salt string, err error) {
	raw := make([]byte, saltLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(deriveKey(password, raw)), hex.EncodeToString(raw), nil
}

// verifyPassword reports whether password derives to hash under salt.
func verifyPassword(password, hash, salt string) bool {
	rawSalt, err := hex.DecodeString(salt)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(deriveKey(password, rawSalt), want) == 1
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
