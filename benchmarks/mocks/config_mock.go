package mocks

import (
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
)

// BenchmarkAESKey is the hex AES-256 key used for session tokens in benchmarks.
const BenchmarkAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// MockConfigProvider implements config.Provider for benchmarking
type MockConfigProvider struct {
	config *config.Config
}

// NewMockConfigProvider creates a new mock config provider with benchmark settings
func NewMockConfigProvider() *MockConfigProvider {
	return &MockConfigProvider{
		config: &config.Config{
			Server: config.ServerConfig{
				HTTPPort: 0,
				GRPCPort: 0,
				PodID:    "benchmark-test-pod",
			},
			NATS: config.NATSConfig{
				URL:                  "nats://mock-nats:4222",
				MessageSubjectPrefix: "panel.messages",
				MaxReconnects:        1,
				ReconnectWaitSeconds: 1,
			},
			Redis: config.RedisConfig{
				Address: "mock-redis:6379",
			},
			Log: config.LogConfig{
				Level: "error", // Minimize I/O overhead during benchmarks
			},
			Auth: config.AuthConfig{
				SecretToken:         "benchmark-secret-token-32chars123",
				SessionTokenAESKey:  BenchmarkAESKey,
				SessionTokenTTLSecs: 3600,
			},
			Panels: config.PanelsConfig{
				// Long cadences keep timers out of the measured loops.
				ContactPollIntervalMs:      60_000,
				AnalyticsRefreshSeconds:    600,
				AnalyticsSettleDelayMs:     2_000,
				FetchTimeoutSeconds:        5,
				MaxPanelSessionsPerProcess: 0,
			},
			App: config.AppConfig{
				ServiceName:                "daisi-panel-service-benchmark",
				Version:                    "test",
				PingIntervalSeconds:        5,
				PongWaitSeconds:            10,
				ShutdownTimeoutSeconds:     1,
				WriteTimeoutSeconds:        5,
				ReadTimeoutSeconds:         1,
				IdleTimeoutSeconds:         5,
				WebsocketMessageBufferSize: 100,
			},
		},
	}
}

// Get implements config.Provider
func (m *MockConfigProvider) Get() *config.Config {
	return m.config
}
