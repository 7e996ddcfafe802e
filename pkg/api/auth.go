package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTokenBytes = 32
	apiKeyBytes       = 32
	apiKeyPrefix      = "lk_"
	// apiKeyPrefixLen is how much of the plaintext key is stored for
	// display.
	apiKeyPrefixLen = 10
)

// generateSessionToken creates a cryptographically random session token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// generateAPIKey creates a new API key. Only the hash and display prefix
// are persisted; the plaintext is shown to the user once.
func generateAPIKey() (plaintext, hash, prefix string, err error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	plaintext = apiKeyPrefix + hex.EncodeToString(b)

	return plaintext, hashAPIKey(plaintext), plaintext[:apiKeyPrefixLen], nil
}

// hashAPIKey returns the hex SHA-256 of an API key.
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	return string(hash), nil
}

// checkPassword compares a bcrypt hash with a plaintext password.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword(
		[]byte(hash), []byte(password),
	) == nil
}
