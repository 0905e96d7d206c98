package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewViperProvider_FileEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
panels:
  contact_poll_interval_ms: 500
auth:
  session_token_aes_key: "00ff"
nats:
  message_subject_prefix: "cdc.messages"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("VIPER_CONFIG_PATH", dir)
	t.Setenv("DAISI_PANEL_APP_SERVICE_NAME", "panel-from-env")
	t.Setenv("DAISI_PANEL_PANELS_ANALYTICS_SETTLE_DELAY_MS", "750")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, err := NewViperProvider(ctx, zap.NewNop())
	require.NoError(t, err)

	cfg := p.Get()
	assert.Equal(t, 500, cfg.Panels.ContactPollIntervalMs)
	assert.Equal(t, 750, cfg.Panels.AnalyticsSettleDelayMs)
	assert.Equal(t, 30, cfg.Panels.AnalyticsRefreshSeconds)
	assert.Equal(t, "00ff", cfg.Auth.SessionTokenAESKey)
	assert.Equal(t, "cdc.messages", cfg.NATS.MessageSubjectPrefix)
	assert.Equal(t, "panel-from-env", cfg.App.ServiceName)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
}

func TestNewViperProvider_WithoutFile(t *testing.T) {
	t.Setenv("VIPER_CONFIG_PATH", t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := NewViperProvider(ctx, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "daisi-panel-service", p.Get().App.ServiceName)
	assert.Equal(t, 1000, p.Get().Panels.ContactPollIntervalMs)
}

func TestStaticProvider(t *testing.T) {
	cfg := &Config{App: AppConfig{ServiceName: "x"}}
	assert.Same(t, cfg, StaticProvider{Config: cfg}.Get())
}
