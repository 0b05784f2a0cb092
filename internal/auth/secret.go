package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minSecretLength = 8

// IsHashedSecret reports whether configured holds a bcrypt hash rather than plaintext.
func IsHashedSecret(configured string) bool {
	configured = strings.TrimSpace(configured)
	return strings.HasPrefix(configured, "$2a$") ||
		strings.HasPrefix(configured, "$2b$") ||
		strings.HasPrefix(configured, "$2y$")
}

// ValidateSecret checks minimal admin key requirements.
func ValidateSecret(secret string) error {
	if len(secret) < minSecretLength {
		return fmt.Errorf("admin key must be at least %d characters", minSecretLength)
	}
	return nil
}

// HashSecret hashes one plaintext admin key for storage in config.
func HashSecret(secret string) (string, error) {
	if err := ValidateSecret(secret); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifySecret compares a presented key against the configured one. An
// empty configured key never verifies.
func VerifySecret(configured, candidate string) bool {
	configured = strings.TrimSpace(configured)
	if configured == "" || candidate == "" {
		return false
	}
	if IsHashedSecret(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(candidate)) == 1
}
