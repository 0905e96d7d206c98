package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/crypto"
)

func TestAuthService_MintAndValidate(t *testing.T) {
	svc := NewAuthService(testLogger(), testConfig())
	ctx := context.Background()

	token, expiresAt, err := svc.MintSessionToken(ctx, domain.CurrentUserInfo{
		ID:       "op-1",
		Name:     "Operator",
		Table:    domain.SessionTableClients,
		TenantID: "t1",
		// Forced off for client accounts.
		CanViewAllUsers: true,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	info, err := svc.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", info.ID)
	assert.Equal(t, "t1", info.TenantID)
	assert.False(t, info.CanViewAllUsers)
	assert.True(t, expiresAt.Equal(info.ExpiresAt))
}

func TestAuthService_ExpiredToken(t *testing.T) {
	svc := NewAuthService(testLogger(), testConfig())
	ctx := context.Background()

	token, _, err := svc.MintSessionToken(ctx, domain.CurrentUserInfo{ID: "admin", Table: domain.SessionTableAdmins, CanViewAllUsers: true})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateSessionToken(ctx, token)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, _, err = svc.MintSessionToken(ctx, domain.CurrentUserInfo{
		ID:        "admin",
		Table:     domain.SessionTableAdmins,
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestAuthService_ParseAndValidateDecryptedToken(t *testing.T) {
	svc := NewAuthService(testLogger(), testConfig())
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		info    domain.CurrentUserInfo
		wantErr error
	}{
		{name: "admin without tenant", info: domain.CurrentUserInfo{ID: "a", Table: domain.SessionTableAdmins, ExpiresAt: future}},
		{name: "client without tenant", info: domain.CurrentUserInfo{ID: "c", Table: domain.SessionTableClients, ExpiresAt: future}, wantErr: ErrTokenPayloadInvalid},
		{name: "unknown table", info: domain.CurrentUserInfo{ID: "x", Table: "operators", ExpiresAt: future}, wantErr: ErrTokenPayloadInvalid},
		{name: "missing id", info: domain.CurrentUserInfo{Table: domain.SessionTableAdmins, ExpiresAt: future}, wantErr: ErrTokenPayloadInvalid},
		{name: "missing expiry", info: domain.CurrentUserInfo{ID: "a", Table: domain.SessionTableAdmins}, wantErr: ErrTokenPayloadInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.info)
			require.NoError(t, err)
			_, err = svc.ParseAndValidateDecryptedToken(payload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := svc.ParseAndValidateDecryptedToken([]byte("{not json"))
	assert.ErrorIs(t, err, ErrTokenPayloadInvalid)
}

func TestAuthService_RejectsForeignOrTamperedTokens(t *testing.T) {
	svc := NewAuthService(testLogger(), testConfig())
	ctx := context.Background()

	otherKey := "1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100"
	foreign, err := crypto.SealSessionToken(otherKey, []byte(`{"id":"x","table":"admins","expires_at":"2999-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	_, err = svc.ValidateSessionToken(ctx, foreign)
	assert.ErrorIs(t, err, crypto.ErrTokenDecryptionFailed)

	_, err = svc.ValidateSessionToken(ctx, "%%%")
	assert.ErrorIs(t, err, crypto.ErrInvalidTokenFormat)
}

func TestAuthService_NotConfigured(t *testing.T) {
	svc := NewAuthService(testLogger(), config.StaticProvider{Config: &config.Config{}})
	_, _, err := svc.MintSessionToken(context.Background(), domain.CurrentUserInfo{ID: "a", Table: domain.SessionTableAdmins})
	assert.ErrorIs(t, err, ErrAuthNotConfigured)
	_, err = svc.ValidateSessionToken(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrAuthNotConfigured)
}

func TestAuthService_CurrentUserInfo(t *testing.T) {
	svc := NewAuthService(testLogger(), testConfig())
	assert.Nil(t, svc.CurrentUserInfo(context.Background()))

	user := &domain.CurrentUserInfo{ID: "op"}
	ctx := context.WithValue(context.Background(), contextkeys.CurrentUserKey, user)
	assert.Same(t, user, svc.CurrentUserInfo(ctx))
}
