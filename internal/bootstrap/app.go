package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/middleware"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/safego"
)

// ReadinessResponse is the body of GET /ready.
type ReadinessResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// checkReadiness pings every backend the panels depend on.
func (a *App) checkReadiness(ctx context.Context) (bool, map[string]string) {
	ready := true
	deps := make(map[string]string)

	switch {
	case a.changes == nil || a.changes.NatsConn() == nil:
		deps["nats"] = "not_configured"
		ready = false
	case a.changes.NatsConn().Status() == nats.CONNECTED:
		deps["nats"] = "connected"
	default:
		deps["nats"] = "disconnected"
		ready = false
		a.logger.Warn(ctx, "Readiness check failed: NATS disconnected", "status", a.changes.NatsConn().Status().String())
	}

	if a.redisClient == nil {
		deps["redis"] = "not_configured"
		ready = false
	} else if err := a.redisClient.Ping(ctx).Err(); err != nil {
		deps["redis"] = "disconnected"
		ready = false
		a.logger.Warn(ctx, "Readiness check failed: Redis ping failed", "error", err.Error())
	} else {
		deps["redis"] = "connected"
	}

	if a.postgresPool == nil {
		deps["postgres"] = "not_configured"
		ready = false
	} else if err := a.postgresPool.Ping(ctx); err != nil {
		deps["postgres"] = "disconnected"
		ready = false
		a.logger.Warn(ctx, "Readiness check failed: Postgres ping failed", "error", err.Error())
	} else {
		deps["postgres"] = "connected"
	}
	return ready, deps
}

// registerRoutes mounts health, readiness, metrics and the panel endpoints.
func (a *App) registerRoutes(ctx context.Context) {
	healthHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.Handle("GET /health", middleware.RequestIDMiddleware(healthHandler))

	readyHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ready, deps := a.checkReadiness(r.Context())
		response := ReadinessResponse{Status: "READY", Dependencies: deps}
		w.Header().Set("Content-Type", "application/json")
		if ready {
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "NOT_READY"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err.Error())
		}
	})
	a.httpServeMux.Handle("GET /ready", middleware.RequestIDMiddleware(readyHandler))

	a.httpServeMux.Handle("GET /metrics", middleware.RequestIDMiddleware(promhttp.Handler()))
	a.logger.Info(ctx, "Prometheus metrics endpoint registered at /metrics")

	if a.wsRouter != nil {
		a.wsRouter.RegisterRoutes(ctx, a.httpServeMux)
	} else {
		a.logger.Warn(ctx, "WebSocket router is not initialized. WebSocket routes will not be available.")
	}

	if a.panelAPI != nil && a.sessionAuth != nil && a.apiKeyAuth != nil {
		a.panelAPI.RegisterRoutes(ctx, a.httpServeMux, a.sessionAuth, a.apiKeyAuth)
	} else {
		a.logger.Error(ctx, "Panel API or its middleware not initialized. /api endpoints will not be available.")
	}
}

// Run starts the servers and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	version := "unknown"
	serviceName := "daisi-panel-service"
	if a.configProvider != nil && a.configProvider.Get() != nil {
		configApp := a.configProvider.Get().App
		if configApp.Version != "" {
			version = configApp.Version
		}
		if configApp.ServiceName != "" {
			serviceName = configApp.ServiceName
		}
	}
	a.logger.Info(ctx, "Starting application", "service_name", serviceName, "version", version)

	a.registerRoutes(ctx)

	if a.grpcServer != nil {
		if err := a.grpcServer.Start(); err != nil {
			a.logger.Warn(ctx, "gRPC health server not started", "error", err.Error())
		} else {
			a.grpcServer.SetServing(true)
		}
	}

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if a.configProvider != nil && a.configProvider.Get() != nil {
			if s := a.configProvider.Get().App.ShutdownTimeoutSeconds; s > 0 {
				shutdownTimeout = time.Duration(s) * time.Second
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if a.grpcServer != nil {
			a.grpcServer.SetServing(false)
		}
		if a.panelManager != nil {
			a.logger.Info(context.Background(), "Stopping all panel sessions...", "sessions", a.panelManager.Count())
			a.panelManager.CloseAll()
		}

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", a.configProvider.Get().Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}
