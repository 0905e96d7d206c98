package websocket

import (
	"context"
	"net/http"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/middleware"
	"gitlab.com/timkado/api/daisi-panel-service/internal/application"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

// PanelsPattern is the route of the panel WebSocket endpoint.
const PanelsPattern = "GET /ws/panels"

// Router mounts the panel WebSocket endpoint behind session authentication.
type Router struct {
	logger      domain.Logger
	authService *application.AuthService
	wsHandler   *Handler
}

// NewRouter creates a new WebSocket router.
func NewRouter(logger domain.Logger, authService *application.AuthService, wsHandler *Handler) *Router {
	return &Router{
		logger:      logger,
		authService: authService,
		wsHandler:   wsHandler,
	}
}

// RegisterRoutes sets up GET /ws/panels with request ID and session token middleware.
func (r *Router) RegisterRoutes(ctx context.Context, mux *http.ServeMux) {
	authed := middleware.SessionTokenAuthMiddleware(r.authService, r.logger)(r.wsHandler)
	mux.Handle(PanelsPattern, middleware.RequestIDMiddleware(authed))
	r.logger.Info(ctx, "WebSocket endpoint registered", "pattern", PanelsPattern)
}
