package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/middleware"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

// PanelQuerier answers one-shot panel queries.
type PanelQuerier interface {
	QueryContacts(ctx context.Context, tenant string, filters domain.Filters) ([]domain.VisibleContact, error)
	QueryAnalytics(ctx context.Context, tenant string) (domain.AnalyticsSnapshot, error)
	MarkRead(ctx context.Context, tenant, contactID string) error
}

// TokenMinter mints operator session tokens.
type TokenMinter interface {
	MintSessionToken(ctx context.Context, info domain.CurrentUserInfo) (string, time.Time, error)
}

// ContactsResponse is the body of GET /api/contacts.
type ContactsResponse struct {
	TenantID string                  `json:"tenant_id,omitempty"`
	Filters  domain.Filters          `json:"filters"`
	Items    []domain.VisibleContact `json:"items"`
}

// AnalyticsResponse is the body of GET /api/analytics.
type AnalyticsResponse struct {
	TenantID string                   `json:"tenant_id,omitempty"`
	Snapshot domain.AnalyticsSnapshot `json:"snapshot"`
}

// SessionTokenRequest is the payload of POST /admin/session-token.
type SessionTokenRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Role             string `json:"role"`
	Table            string `json:"table"`
	TenantID         string `json:"tenant_id,omitempty"`
	CanViewAllUsers  bool   `json:"can_view_all_users"`
	ExpiresInSeconds int    `json:"expires_in_seconds,omitempty"`
}

// SessionTokenResponse is the response of POST /admin/session-token.
type SessionTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PanelAPI serves the JSON endpoints of the panels.
type PanelAPI struct {
	logger   domain.Logger
	panels   PanelQuerier
	sessions domain.SessionLookup
	minter   TokenMinter
}

// NewPanelAPI creates a PanelAPI.
func NewPanelAPI(logger domain.Logger, panels PanelQuerier, sessions domain.SessionLookup, minter TokenMinter) *PanelAPI {
	return &PanelAPI{logger: logger, panels: panels, sessions: sessions, minter: minter}
}

// RegisterRoutes mounts the endpoints. Session endpoints are wrapped with
// sessionAuth, the token endpoint with apiKeyAuth.
func (a *PanelAPI) RegisterRoutes(ctx context.Context, mux *http.ServeMux, sessionAuth, apiKeyAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/contacts", middleware.RequestIDMiddleware(sessionAuth(http.HandlerFunc(a.Contacts))))
	mux.Handle("GET /api/analytics", middleware.RequestIDMiddleware(sessionAuth(http.HandlerFunc(a.Analytics))))
	mux.Handle("POST /api/contacts/{id}/read", middleware.RequestIDMiddleware(sessionAuth(http.HandlerFunc(a.MarkRead))))
	mux.Handle("POST /admin/session-token", middleware.RequestIDMiddleware(apiKeyAuth(http.HandlerFunc(a.MintSessionToken))))
	a.logger.Info(ctx, "Panel API endpoints registered")
}

// resolveTenant maps the requested tenant through the operator's scope and
// writes the error response itself when it fails.
func (a *PanelAPI) resolveTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := a.sessions.CurrentUserInfo(r.Context())
	if user == nil {
		domain.NewErrorResponse(domain.ErrInvalidToken, "Missing operator session.", "").WriteJSON(w, http.StatusForbidden)
		return "", false
	}
	tenant, err := user.EffectiveTenant(r.URL.Query().Get("tenant"))
	if err != nil {
		a.logger.Warn(r.Context(), "Tenant outside operator scope", "requested_tenant", r.URL.Query().Get("tenant"))
		domain.NewErrorResponse(domain.ErrForbidden, "Tenant is outside your scope.", "").WriteJSON(w, http.StatusForbidden)
		return "", false
	}
	return tenant, true
}

// Contacts handles GET /api/contacts?tenant=&platform=&status=&q=.
func (a *PanelAPI) Contacts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.resolveTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := domain.Filters{Platform: q.Get("platform"), Status: q.Get("status"), Query: q.Get("q")}

	items, err := a.panels.QueryContacts(r.Context(), tenant, filters)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidFilter) {
			domain.NewErrorResponse(domain.ErrInvalidFilterCode, "Invalid filter", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		a.logger.Error(r.Context(), "Contact query failed", "tenant_id", tenant, "error", err.Error())
		domain.NewErrorResponse(domain.ErrFetchFailed, "Failed to load contacts", err.Error()).WriteJSON(w, http.StatusBadGateway)
		return
	}
	writeJSON(a.logger, w, r, http.StatusOK, ContactsResponse{TenantID: tenant, Filters: filters, Items: items})
}

// Analytics handles GET /api/analytics?tenant=.
func (a *PanelAPI) Analytics(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.resolveTenant(w, r)
	if !ok {
		return
	}
	snap, err := a.panels.QueryAnalytics(r.Context(), tenant)
	if err != nil {
		a.logger.Error(r.Context(), "Analytics query failed", "tenant_id", tenant, "error", err.Error())
		domain.NewErrorResponse(domain.ErrFetchFailed, "Failed to load analytics", err.Error()).WriteJSON(w, http.StatusBadGateway)
		return
	}
	writeJSON(a.logger, w, r, http.StatusOK, AnalyticsResponse{TenantID: tenant, Snapshot: snap})
}

// MarkRead handles POST /api/contacts/{id}/read?tenant=.
func (a *PanelAPI) MarkRead(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.resolveTenant(w, r)
	if !ok {
		return
	}
	contactID := r.PathValue("id")
	if contactID == "" {
		domain.NewErrorResponse(domain.ErrBadRequest, "Missing contact id", "").WriteJSON(w, http.StatusBadRequest)
		return
	}
	if err := a.panels.MarkRead(r.Context(), tenant, contactID); err != nil {
		a.logger.Error(r.Context(), "Mark read failed", "tenant_id", tenant, "contact_id", contactID, "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "Failed to persist read state", err.Error()).WriteJSON(w, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MintSessionToken handles POST /admin/session-token.
func (a *PanelAPI) MintSessionToken(w http.ResponseWriter, r *http.Request) {
	var req SessionTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.logger.Warn(r.Context(), "Failed to decode /admin/session-token payload", "error", err.Error())
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.ID == "" || req.Table == "" || req.ExpiresInSeconds < 0 {
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid payload", "id and table are required; expires_in_seconds must not be negative.").WriteJSON(w, http.StatusBadRequest)
		return
	}

	info := domain.CurrentUserInfo{
		ID:              req.ID,
		Name:            req.Name,
		Role:            req.Role,
		Table:           req.Table,
		TenantID:        req.TenantID,
		CanViewAllUsers: req.CanViewAllUsers,
	}
	if req.ExpiresInSeconds > 0 {
		info.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresInSeconds) * time.Second).UTC()
	}

	token, expiresAt, err := a.minter.MintSessionToken(r.Context(), info)
	if err != nil {
		a.logger.Warn(r.Context(), "Failed to mint session token", "error", err.Error())
		domain.NewErrorResponse(domain.ErrBadRequest, "Failed to create token", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return
	}
	writeJSON(a.logger, w, r, http.StatusOK, SessionTokenResponse{Token: token, ExpiresAt: expiresAt})
}

func writeJSON(logger domain.Logger, w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(r.Context(), "Failed to encode response", "path", r.URL.Path, "error", err.Error())
	}
}
