package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/tasklight/tasklight/internal/database"
)

const (
	// APIKeyLength is the length of generated API keys in bytes (will be hex encoded)
	APIKeyLength = 32
	// BcryptCost is the bcrypt cost factor for the stored key hash
	BcryptCost = 10

	keyHashSetting = "auth.api_key_hash"
)

// APIKeyService handles API key management. Only a bcrypt hash of the key
// is stored; the plaintext is shown once when the key is generated.
type APIKeyService struct {
	db *database.DB
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(db *database.DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// GenerateAPIKey creates a new cryptographically secure API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// EnsureKey makes sure an API key exists. On first run it generates one,
// stores its hash and logs the plaintext once so the operator can record it.
func (s *APIKeyService) EnsureKey() error {
	existing, err := s.db.GetSetting(keyHashSetting)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	_, err = s.Regenerate()
	return err
}

// Regenerate replaces the stored API key and returns the new plaintext key
func (s *APIKeyService) Regenerate() (string, error) {
	key, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	if err := s.db.SetSetting(keyHashSetting, string(hash)); err != nil {
		return "", err
	}

	log.Info().Str("api_key", key).Msg("Generated API key (store it now, it is not shown again)")
	return key, nil
}

// ValidateAPIKey checks a presented key against the stored hash
func (s *APIKeyService) ValidateAPIKey(apiKey string) (bool, error) {
	if apiKey == "" {
		return false, nil
	}

	hash, err := s.db.GetSetting(keyHashSetting)
	if err != nil {
		return false, fmt.Errorf("failed to load api key hash: %w", err)
	}
	if hash == "" {
		return false, nil
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) == nil, nil
}
