package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "DAISI_PANEL"

// ServerConfig holds listener configuration.
type ServerConfig struct {
	HTTPPort int    `mapstructure:"http_port"`
	GRPCPort int    `mapstructure:"grpc_port"`
	PodID    string `mapstructure:"pod_id"`
}

// PostgresConfig holds the relational backend connection settings.
type PostgresConfig struct {
	DSN                   string `mapstructure:"dsn"`
	MaxConns              int32  `mapstructure:"max_conns"`
	QueryTimeoutSeconds   int    `mapstructure:"query_timeout_seconds"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
}

// NATSConfig holds NATS settings for the realtime change feed.
type NATSConfig struct {
	URL                  string `mapstructure:"url"`
	MessageSubjectPrefix string `mapstructure:"message_subject_prefix"` // subjects are <prefix>.<tenant>
	MaxReconnects        int    `mapstructure:"max_reconnects"`
	ReconnectWaitSeconds int    `mapstructure:"reconnect_wait_seconds"`
}

// RedisConfig holds Redis settings for unread counters.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json (default) or console
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	SecretToken         string `mapstructure:"secret_token"`          // API key for service-to-service endpoints
	SessionTokenAESKey  string `mapstructure:"session_token_aes_key"` // hex encoded AES-256 key for operator session tokens
	SessionTokenTTLSecs int    `mapstructure:"session_token_ttl_seconds"`
}

// PanelsConfig holds the refresh cadence of both panels.
type PanelsConfig struct {
	ContactPollIntervalMs      int `mapstructure:"contact_poll_interval_ms"`
	AnalyticsRefreshSeconds    int `mapstructure:"analytics_refresh_seconds"`
	AnalyticsSettleDelayMs     int `mapstructure:"analytics_settle_delay_ms"`
	FetchTimeoutSeconds        int `mapstructure:"fetch_timeout_seconds"`
	MaxPanelSessionsPerProcess int `mapstructure:"max_panel_sessions_per_process"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName                string `mapstructure:"service_name"`
	Version                    string `mapstructure:"version"`
	PingIntervalSeconds        int    `mapstructure:"ping_interval_seconds"`
	PongWaitSeconds            int    `mapstructure:"pong_wait_seconds"`
	ShutdownTimeoutSeconds     int    `mapstructure:"shutdown_timeout_seconds"`
	WriteTimeoutSeconds        int    `mapstructure:"write_timeout_seconds"`
	ReadTimeoutSeconds         int    `mapstructure:"read_timeout_seconds"`
	IdleTimeoutSeconds         int    `mapstructure:"idle_timeout_seconds"`
	WebsocketMessageBufferSize int    `mapstructure:"websocket_message_buffer_size"`
}

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Panels   PanelsConfig   `mapstructure:"panels"`
	App      AppConfig      `mapstructure:"app"`
}

// Provider gives access to the current configuration.
type Provider interface {
	Get() *Config
}

// StaticProvider serves a fixed configuration. Used by tests and tools.
type StaticProvider struct {
	Config *Config
}

// Get implements Provider.
func (s StaticProvider) Get() *Config {
	return s.Config
}

// viperProvider implements Provider using Viper, swapping the config atomically on reload.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.query_timeout_seconds", 5)
	v.SetDefault("postgres.connect_timeout_seconds", 5)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.message_subject_prefix", "db.messages")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait_seconds", 2)
	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.session_token_ttl_seconds", 8*60*60)
	v.SetDefault("panels.contact_poll_interval_ms", 1000)
	v.SetDefault("panels.analytics_refresh_seconds", 30)
	v.SetDefault("panels.analytics_settle_delay_ms", 2000)
	v.SetDefault("panels.fetch_timeout_seconds", 10)
	v.SetDefault("panels.max_panel_sessions_per_process", 1000)
	v.SetDefault("app.service_name", "daisi-panel-service")
	v.SetDefault("app.ping_interval_seconds", 20)
	v.SetDefault("app.pong_wait_seconds", 60)
	v.SetDefault("app.shutdown_timeout_seconds", 30)
	v.SetDefault("app.write_timeout_seconds", 10)
	v.SetDefault("app.read_timeout_seconds", 10)
	v.SetDefault("app.idle_timeout_seconds", 60)
	v.SetDefault("app.websocket_message_buffer_size", 64)
}

// NewViperProvider loads configuration from file and environment variables
// and keeps it fresh on SIGHUP and on config file changes. The reload
// goroutine stops when appCtx is cancelled.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "/app/config"))
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // panels.contact_poll_interval_ms -> DAISI_PANEL_PANELS_CONTACT_POLL_INTERVAL_MS

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{logger: logger}
	p.config.Store(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer signal.Stop(sigChan)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				p.reload(v, "sighup")
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Panic recovered in OnConfigChange callback",
						zap.String("event_name", e.Name),
						zap.Any("panic_info", r),
						zap.String("stacktrace", string(debug.Stack())),
					)
				}
			}()
			p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
			p.reload(v, "file_change")
		})
		v.WatchConfig()
	}

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))
	return p, nil
}

func (p *viperProvider) reload(v *viper.Viper, trigger string) {
	newCfg := &Config{}
	if err := v.Unmarshal(newCfg); err != nil {
		p.logger.Error("Failed to unmarshal reloaded config", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	p.config.Store(newCfg)
	p.logger.Info("Configuration reloaded successfully", zap.String("trigger", trigger))
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
