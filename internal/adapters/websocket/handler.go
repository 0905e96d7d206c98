package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/application"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/safego"
)

// Handler upgrades dashboard clients to WebSocket and runs one panel session
// per connection.
type Handler struct {
	logger         domain.Logger
	configProvider config.Provider
	panels         *application.PanelManager
	sessions       domain.SessionLookup
}

// NewHandler creates a new WebSocket Handler.
func NewHandler(logger domain.Logger, cfgProvider config.Provider, panels *application.PanelManager, sessions domain.SessionLookup) *Handler {
	return &Handler{
		logger:         logger,
		configProvider: cfgProvider,
		panels:         panels,
		sessions:       sessions,
	}
}

// FiltersFromQuery reads platform, status and q from a query string.
func FiltersFromQuery(r *http.Request) domain.Filters {
	q := r.URL.Query()
	return domain.Filters{
		Platform: q.Get("platform"),
		Status:   q.Get("status"),
		Query:    q.Get("q"),
	}
}

// ServeHTTP is the entry point for WebSocket upgrade requests. It expects the
// session token middleware to have stored the operator on the context.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := h.sessions.CurrentUserInfo(r.Context())
	if user == nil {
		h.logger.Warn(r.Context(), "WebSocket upgrade without operator session", "remote_addr", r.RemoteAddr)
		domain.NewErrorResponse(domain.ErrInvalidToken, "Missing operator session.", "").WriteJSON(w, http.StatusForbidden)
		return
	}

	tenant := r.URL.Query().Get("tenant")
	filters := FiltersFromQuery(r)
	if err := filters.Validate(); err != nil {
		domain.NewErrorResponse(domain.ErrInvalidFilterCode, "Invalid filter.", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}
	if _, err := user.EffectiveTenant(tenant); err != nil {
		h.logger.Warn(r.Context(), "WebSocket upgrade for foreign tenant rejected", "requested_tenant", tenant, "user_id", user.ID)
		domain.NewErrorResponse(domain.ErrForbidden, "Tenant is outside your scope.", "").WriteJSON(w, http.StatusForbidden)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
	if err != nil {
		h.logger.Error(r.Context(), "WebSocket upgrade failed", "error", err.Error())
		return
	}
	if c.Subprotocol() != Subprotocol {
		h.logger.Warn(r.Context(), "Client did not negotiate the json.v1 subprotocol", "subprotocol", c.Subprotocol())
		c.Close(websocket.StatusPolicyViolation, "client must speak the "+Subprotocol+" subprotocol")
		return
	}

	connCtx, cancelConn := context.WithCancel(r.Context())
	conn := NewConnection(connCtx, cancelConn, c, r.RemoteAddr, h.logger, h.configProvider)
	defer conn.Close(websocket.StatusNormalClosure, "connection ended")

	session, err := h.panels.Open(connCtx, user, tenant, filters, conn)
	if err != nil {
		h.logger.Error(connCtx, "Failed to open panel session", "error", err.Error())
		code := domain.ErrInternal
		if errors.Is(err, application.ErrTooManySessions) {
			_ = conn.Close(websocket.StatusTryAgainLater, "too many panel sessions")
			return
		}
		_ = conn.CloseWithError(domain.NewErrorResponse(code, "Failed to open panel session.", err.Error()), "panel session failed")
		return
	}
	defer h.panels.Close(session.ID())

	h.manageConnection(session.Context(), conn, session)
}

// manageConnection sends the initial state, keeps the connection alive with
// pings and dispatches client messages until the connection ends.
func (h *Handler) manageConnection(ctx context.Context, conn *Connection, session *application.PanelSession) {
	if err := conn.WriteJSON(NewReadyMessage(ReadyPayload{SessionID: session.ID(), TenantID: session.TenantID(), User: session.User()})); err != nil {
		h.logger.Error(ctx, "Failed to send 'ready' message to client", "error", err.Error())
		return
	}
	conn.PushContacts(ctx, session.ContactsPayload())
	conn.PushAnalytics(ctx, session.AnalyticsPayload())
	h.logger.Info(ctx, "Panel session ready", "remote_addr", conn.RemoteAddr())

	appCfg := h.configProvider.Get().App
	pingInterval := time.Duration(appCfg.PingIntervalSeconds) * time.Second
	pongWait := time.Duration(appCfg.PongWaitSeconds) * time.Second
	if pingInterval > 0 {
		safego.Execute(ctx, h.logger, "WebSocketPinger", func() { h.pingLoop(ctx, conn, pingInterval, pongWait) })
	} else {
		h.logger.Warn(ctx, "Ping interval is not configured, server-initiated pings disabled", "configured_interval_sec", appCfg.PingIntervalSeconds)
	}

	for {
		msgType, p, err := conn.ReadMessage(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			switch {
			case closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway:
				h.logger.Info(ctx, "WebSocket connection closed by peer", "status_code", int(closeStatus))
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				h.logger.Info(ctx, "WebSocket connection context canceled")
			default:
				h.logger.Warn(ctx, "Error reading from WebSocket", "error", err.Error(), "close_status_code", int(closeStatus))
			}
			return
		}
		if msgType != websocket.MessageText {
			conn.SendError(domain.NewErrorResponse(domain.ErrBadRequest, "Binary messages are not supported", ""))
			continue
		}
		h.dispatch(ctx, conn, session, p)
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *Connection, interval, pongWait time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				if ctx.Err() == nil {
					h.logger.Warn(ctx, "Failed to ping client", "error", err.Error())
					_ = conn.Close(websocket.StatusPolicyViolation, "ping failure")
				}
				return
			}
			if pongWait > 0 && time.Since(conn.LastPongTime()) > pongWait {
				h.logger.Warn(ctx, "Pong timeout, closing connection", "last_pong", conn.LastPongTime())
				_ = conn.Close(websocket.StatusPolicyViolation, "pong timeout")
				return
			}
		}
	}
}

// dispatch handles one client message. Errors are reported to the client as
// "error" messages; the connection stays open.
func (h *Handler) dispatch(ctx context.Context, conn *Connection, session *application.PanelSession, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		conn.SendError(domain.NewErrorResponse(domain.ErrBadRequest, "Invalid message format", err.Error()))
		return
	}
	h.logger.Debug(ctx, "Received client message", "type", msg.Type)

	switch msg.Type {
	case domain.MessageTypeSetFilter:
		var f domain.Filters
		if err := decodePayload(msg.Payload, &f); err != nil {
			conn.SendError(domain.NewErrorResponse(domain.ErrBadRequest, "Invalid set_filter payload", err.Error()))
			return
		}
		if err := session.SetFilters(f); err != nil {
			conn.SendError(domain.NewErrorResponse(domain.ErrInvalidFilterCode, "Invalid filter", err.Error()))
		}

	case domain.MessageTypeSelectContact:
		var p domain.SelectContactPayload
		if err := decodePayload(msg.Payload, &p); err != nil || p.ContactID == "" {
			conn.SendError(domain.NewErrorResponse(domain.ErrBadRequest, "Invalid select_contact payload", "contact_id is required"))
			return
		}
		if _, err := session.SelectContact(ctx, p.ContactID); err != nil {
			if errors.Is(err, domain.ErrContactNotFound) {
				conn.SendError(domain.NewErrorResponse(domain.ErrNotFound, "Contact not found", p.ContactID))
				return
			}
			conn.SendError(domain.NewErrorResponse(domain.ErrInternal, "Failed to persist read state", err.Error()))
		}

	case domain.MessageTypeUpdateUnread:
		var p domain.UpdateUnreadPayload
		if err := decodePayload(msg.Payload, &p); err != nil || p.ContactID == "" {
			conn.SendError(domain.NewErrorResponse(domain.ErrBadRequest, "Invalid update_unread payload", "contact_id is required"))
			return
		}
		session.UpdateUnread(p)

	case domain.MessageTypePause:
		session.Pause()

	case domain.MessageTypeResume:
		session.Resume()

	case domain.MessageTypeReload:
		session.Reload()

	case domain.MessageTypeSetTenant:
		var p domain.SetTenantPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			conn.SendError(domain.NewErrorResponse(domain.ErrBadRequest, "Invalid set_tenant payload", err.Error()))
			return
		}
		if err := session.SetTenant(p.TenantID); err != nil {
			if errors.Is(err, domain.ErrForbiddenTenant) {
				conn.SendError(domain.NewErrorResponse(domain.ErrForbidden, "Tenant is outside your scope", p.TenantID))
				return
			}
			conn.SendError(domain.NewErrorResponse(domain.ErrInternal, "Failed to change tenant", err.Error()))
		}

	default:
		h.logger.Warn(ctx, "Received unhandled message type from client", "type", msg.Type)
		conn.SendError(domain.NewErrorResponse(domain.ErrBadRequest, "Unhandled message type", "Type: "+msg.Type))
	}
}
