package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	appgrpc "gitlab.com/timkado/api/daisi-panel-service/internal/adapters/grpc"
	apphttp "gitlab.com/timkado/api/daisi-panel-service/internal/adapters/http"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/logger"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/middleware"
	appnats "gitlab.com/timkado/api/daisi-panel-service/internal/adapters/nats"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/postgres"
	appredis "gitlab.com/timkado/api/daisi-panel-service/internal/adapters/redis"
	wsadapter "gitlab.com/timkado/api/daisi-panel-service/internal/adapters/websocket"
	"gitlab.com/timkado/api/daisi-panel-service/internal/application"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

// Distinct types so Wire can tell the middlewares apart.
type SessionAuthMiddleware func(http.Handler) http.Handler
type APIKeyMiddleware func(http.Handler) http.Handler

// InitialZapLoggerProvider provides a basic *zap.Logger used while the configuration loads.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App holds the long-lived components of the service.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server
	grpcServer     *appgrpc.Server
	wsRouter       *wsadapter.Router
	panelAPI       *apphttp.PanelAPI
	sessionAuth    SessionAuthMiddleware
	apiKeyAuth     APIKeyMiddleware
	panelManager   *application.PanelManager
	changes        *appnats.ChangeSubscriber
	redisClient    *redis.Client
	postgresPool   *pgxpool.Pool
}

// NewApp is the constructor for App.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	grpcSrv *appgrpc.Server,
	wsRouter *wsadapter.Router,
	panelAPI *apphttp.PanelAPI,
	sessionAuth SessionAuthMiddleware,
	apiKeyAuth APIKeyMiddleware,
	panelManager *application.PanelManager,
	changes *appnats.ChangeSubscriber,
	redisClient *redis.Client,
	pool *pgxpool.Pool,
) (*App, func(), error) {
	app := &App{
		configProvider: cfgProvider,
		logger:         appLogger,
		httpServeMux:   mux,
		httpServer:     server,
		grpcServer:     grpcSrv,
		wsRouter:       wsRouter,
		panelAPI:       panelAPI,
		sessionAuth:    sessionAuth,
		apiKeyAuth:     apiKeyAuth,
		panelManager:   panelManager,
		changes:        changes,
		redisClient:    redisClient,
		postgresPool:   pool,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		if app.panelManager != nil {
			app.panelManager.CloseAll()
		}
		if app.grpcServer != nil {
			app.grpcServer.GracefulStop()
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	return logger.NewZapAdapter(cfgProvider, cfgProvider.Get().App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides the HTTP server.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	readTimeout := 10 * time.Second
	writeTimeout := 10 * time.Second
	idleTimeout := 60 * time.Second
	if appCfg.App.ReadTimeoutSeconds > 0 {
		readTimeout = time.Duration(appCfg.App.ReadTimeoutSeconds) * time.Second
	}
	if appCfg.App.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(appCfg.App.WriteTimeoutSeconds) * time.Second
	}
	if appCfg.App.IdleTimeoutSeconds > 0 {
		idleTimeout = time.Duration(appCfg.App.IdleTimeoutSeconds) * time.Second
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// RedisClientProvider provides a Redis client and a cleanup function.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// PostgresPoolProvider provides the pgx connection pool and a cleanup function.
func PostgresPoolProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*pgxpool.Pool, func(), error) {
	pool, err := postgres.Open(ctx, cfgProvider.Get().Postgres)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to Postgres", "error", err.Error())
		return nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		appLogger.Info(context.Background(), "Postgres pool closed")
	}
	appLogger.Info(ctx, "Successfully connected to Postgres")
	return pool, cleanup, nil
}

// ContactRepositoryProvider provides the contact repository.
func ContactRepositoryProvider(pool *pgxpool.Pool, cfgProvider config.Provider) *postgres.ContactRepository {
	return postgres.NewContactRepository(pool, cfgProvider)
}

// MessageRepositoryProvider provides the message repository.
func MessageRepositoryProvider(pool *pgxpool.Pool, cfgProvider config.Provider) *postgres.MessageRepository {
	return postgres.NewMessageRepository(pool, cfgProvider)
}

// UnreadStoreProvider provides the Redis-backed unread store.
func UnreadStoreProvider(redisClient *redis.Client, logger domain.Logger) *appredis.UnreadStore {
	return appredis.NewUnreadStore(redisClient, logger)
}

// ChangeSubscriberProvider provides the NATS change subscriber.
func ChangeSubscriberProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*appnats.ChangeSubscriber, func(), error) {
	return appnats.NewChangeSubscriber(ctx, cfgProvider, appLogger)
}

// AuthServiceProvider provides the AuthService.
func AuthServiceProvider(logger domain.Logger, cfgProvider config.Provider) *application.AuthService {
	return application.NewAuthService(logger, cfgProvider)
}

// PanelManagerProvider provides the PanelManager.
func PanelManagerProvider(
	logger domain.Logger,
	cfgProvider config.Provider,
	contacts domain.ContactRepository,
	messages domain.MessageRepository,
	unread domain.UnreadStore,
	changes domain.MessageChangeSubscriber,
) *application.PanelManager {
	return application.NewPanelManager(logger, cfgProvider, contacts, messages, unread, changes)
}

// SessionAuthMiddlewareProvider provides the operator session middleware.
func SessionAuthMiddlewareProvider(authService *application.AuthService, logger domain.Logger) SessionAuthMiddleware {
	return middleware.SessionTokenAuthMiddleware(authService, logger)
}

// APIKeyMiddlewareProvider provides the service API key middleware.
func APIKeyMiddlewareProvider(cfgProvider config.Provider, logger domain.Logger) APIKeyMiddleware {
	return middleware.APIKeyAuthMiddleware(cfgProvider, logger)
}

// WebsocketHandlerProvider provides the websocket handler.
func WebsocketHandlerProvider(logger domain.Logger, cfgProvider config.Provider, panels *application.PanelManager, authService *application.AuthService) *wsadapter.Handler {
	return wsadapter.NewHandler(logger, cfgProvider, panels, authService)
}

// WebsocketRouterProvider provides the websocket router.
func WebsocketRouterProvider(logger domain.Logger, authService *application.AuthService, wsHandler *wsadapter.Handler) *wsadapter.Router {
	return wsadapter.NewRouter(logger, authService, wsHandler)
}

// PanelAPIProvider provides the panel JSON endpoints.
func PanelAPIProvider(logger domain.Logger, panels *application.PanelManager, authService *application.AuthService) *apphttp.PanelAPI {
	return apphttp.NewPanelAPI(logger, panels, authService, authService)
}

// GRPCServerProvider provides the gRPC health server.
func GRPCServerProvider(appCtx context.Context, logger domain.Logger, cfgProvider config.Provider) (*appgrpc.Server, error) {
	return appgrpc.NewServer(appCtx, logger, cfgProvider)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure adapters
	RedisClientProvider,
	PostgresPoolProvider,
	ContactRepositoryProvider,
	wire.Bind(new(domain.ContactRepository), new(*postgres.ContactRepository)),
	MessageRepositoryProvider,
	wire.Bind(new(domain.MessageRepository), new(*postgres.MessageRepository)),
	UnreadStoreProvider,
	wire.Bind(new(domain.UnreadStore), new(*appredis.UnreadStore)),
	ChangeSubscriberProvider,
	wire.Bind(new(domain.MessageChangeSubscriber), new(*appnats.ChangeSubscriber)),

	// Application services
	AuthServiceProvider,
	PanelManagerProvider,

	// Transport
	SessionAuthMiddlewareProvider,
	APIKeyMiddlewareProvider,
	WebsocketHandlerProvider,
	WebsocketRouterProvider,
	PanelAPIProvider,
	GRPCServerProvider,

	NewApp,
)
