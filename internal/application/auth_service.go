package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/crypto"
)

var (
	ErrTokenPayloadInvalid = errors.New("token payload is invalid")
	ErrAuthNotConfigured   = errors.New("application not configured for session tokens")
)

const defaultSessionTokenTTL = 8 * time.Hour

// AuthService mints and validates operator session tokens and exposes the
// operator of a request to the rest of the application.
type AuthService struct {
	logger domain.Logger
	config config.Provider
	now    func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(logger domain.Logger, config config.Provider) *AuthService {
	if logger == nil {
		panic("logger is nil in NewAuthService")
	}
	if config == nil {
		panic("config provider is nil in NewAuthService")
	}
	return &AuthService{logger: logger, config: config, now: time.Now}
}

// ParseAndValidateDecryptedToken parses a decrypted token payload and checks
// the fields a session needs.
func (s *AuthService) ParseAndValidateDecryptedToken(decryptedPayload []byte) (*domain.CurrentUserInfo, error) {
	var info domain.CurrentUserInfo
	if err := json.Unmarshal(decryptedPayload, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal token JSON: %v", ErrTokenPayloadInvalid, err)
	}

	if info.ID == "" || info.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: missing essential fields (id, expires_at)", ErrTokenPayloadInvalid)
	}
	if info.Table != domain.SessionTableAdmins && info.Table != domain.SessionTableClients {
		return nil, fmt.Errorf("%w: unknown account table %q", ErrTokenPayloadInvalid, info.Table)
	}
	// Client accounts are always pinned to their own tenant.
	if info.Table == domain.SessionTableClients {
		if info.TenantID == "" {
			return nil, fmt.Errorf("%w: client session without tenant_id", ErrTokenPayloadInvalid)
		}
		info.CanViewAllUsers = false
	}
	if s.now().After(info.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired at %v", domain.ErrSessionExpired, info.ExpiresAt)
	}
	return &info, nil
}

// ValidateSessionToken decrypts and validates a session token.
func (s *AuthService) ValidateSessionToken(ctx context.Context, token string) (*domain.CurrentUserInfo, error) {
	aesKeyHex := s.config.Get().Auth.SessionTokenAESKey
	if aesKeyHex == "" {
		s.logger.Error(ctx, "Session token AES key not configured", "config_key", "auth.session_token_aes_key")
		return nil, ErrAuthNotConfigured
	}

	payload, err := crypto.OpenSessionToken(aesKeyHex, token)
	if err != nil {
		s.logger.Warn(ctx, "Session token decryption failed", "error", err.Error())
		return nil, err
	}

	info, err := s.ParseAndValidateDecryptedToken(payload)
	if err != nil {
		s.logger.Warn(ctx, "Decrypted session token failed validation", "error", err.Error())
		return nil, err
	}
	s.logger.Debug(ctx, "Session token validated", "user_id", info.ID, "table", info.Table)
	return info, nil
}

// MintSessionToken seals info into a session token. A zero ExpiresAt is
// replaced by now plus the configured TTL.
func (s *AuthService) MintSessionToken(ctx context.Context, info domain.CurrentUserInfo) (string, time.Time, error) {
	cfg := s.config.Get().Auth
	if cfg.SessionTokenAESKey == "" {
		return "", time.Time{}, ErrAuthNotConfigured
	}
	if info.ExpiresAt.IsZero() {
		ttl := time.Duration(cfg.SessionTokenTTLSecs) * time.Second
		if ttl <= 0 {
			ttl = defaultSessionTokenTTL
		}
		info.ExpiresAt = s.now().Add(ttl).UTC()
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshal session payload: %w", err)
	}
	if _, err := s.ParseAndValidateDecryptedToken(payload); err != nil {
		return "", time.Time{}, err
	}

	token, err := crypto.SealSessionToken(cfg.SessionTokenAESKey, payload)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("seal session token: %w", err)
	}
	s.logger.Info(ctx, "Session token minted", "user_id", info.ID, "table", info.Table, "expires_at", info.ExpiresAt)
	return token, info.ExpiresAt, nil
}

// CurrentUserInfo returns the operator stored on ctx by the session middleware.
func (s *AuthService) CurrentUserInfo(ctx context.Context) *domain.CurrentUserInfo {
	info, _ := ctx.Value(contextkeys.CurrentUserKey).(*domain.CurrentUserInfo)
	return info
}
