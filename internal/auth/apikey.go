package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// API keys have the form "vw_<key_id>.<secret>". The key ID is stored in
// plaintext for account lookup; only a bcrypt hash of the secret is
// persisted.
const (
	apiKeyPrefix    = "vw_"
	apiKeySecretLen = 32 // bytes of entropy before hex encoding
)

// APIKey is the parsed form of a presented API key.
type APIKey struct {
	ID     string
	Secret string
}

// ParseAPIKey splits a presented API key into its ID and secret parts.
func ParseAPIKey(raw string) (*APIKey, error) {
	if !strings.HasPrefix(raw, apiKeyPrefix) {
		return nil, fmt.Errorf("invalid API key format")
	}

	body := strings.TrimPrefix(raw, apiKeyPrefix)
	id, secret, found := strings.Cut(body, ".")
	if !found || id == "" || secret == "" {
		return nil, fmt.Errorf("invalid API key format")
	}

	return &APIKey{ID: id, Secret: secret}, nil
}

// VerifyAPIKey compares the presented secret against the stored hash.
// Returns true when they match.
func VerifyAPIKey(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// GenerateAPIKey creates a new API key and the hash to persist with the
// account. The full key is returned once and cannot be recovered later.
func GenerateAPIKey() (key string, keyID string, hash []byte, err error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", nil, fmt.Errorf("failed to generate key id: %w", err)
	}
	keyID = hex.EncodeToString(idBytes)

	secretBytes := make([]byte, apiKeySecretLen)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", nil, fmt.Errorf("failed to generate key secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err = bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to hash key secret: %w", err)
	}

	return apiKeyPrefix + keyID + "." + secret, keyID, hash, nil
}
