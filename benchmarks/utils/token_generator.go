package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/crypto"
)

// TokenGenerator seals operator session tokens for benchmarks.
type TokenGenerator struct {
	aesKeyHex string
}

// NewTokenGenerator creates a token generator for the given hex AES-256 key.
func NewTokenGenerator(aesKeyHex string) *TokenGenerator {
	return &TokenGenerator{aesKeyHex: aesKeyHex}
}

// GenerateAdminToken creates a token for an admin allowed to view every tenant.
func (tg *TokenGenerator) GenerateAdminToken(adminID string, expiresIn time.Duration) (string, error) {
	return tg.seal(domain.CurrentUserInfo{
		ID:              adminID,
		Name:            "Benchmark Admin",
		Role:            "admin",
		Table:           domain.SessionTableAdmins,
		CanViewAllUsers: true,
		ExpiresAt:       time.Now().Add(expiresIn),
	})
}

// GenerateClientToken creates a token for a client operator pinned to tenantID.
func (tg *TokenGenerator) GenerateClientToken(clientID, tenantID string, expiresIn time.Duration) (string, error) {
	return tg.seal(domain.CurrentUserInfo{
		ID:        clientID,
		Name:      "Benchmark Client",
		Role:      "client",
		Table:     domain.SessionTableClients,
		TenantID:  tenantID,
		ExpiresAt: time.Now().Add(expiresIn),
	})
}

// GenerateExpiredToken creates a client token that expired an hour ago.
func (tg *TokenGenerator) GenerateExpiredToken(clientID, tenantID string) (string, error) {
	return tg.GenerateClientToken(clientID, tenantID, -time.Hour)
}

// GenerateInvalidToken returns a string that is not a sealed token.
func (tg *TokenGenerator) GenerateInvalidToken() string {
	return "not-a-valid-session-token"
}

func (tg *TokenGenerator) seal(info domain.CurrentUserInfo) (string, error) {
	payload, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session payload: %w", err)
	}
	return crypto.SealSessionToken(tg.aesKeyHex, payload)
}
