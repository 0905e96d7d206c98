package contextkeys

// Key is the type of the context keys defined here.
type Key string

const (
	// RequestIDKey carries the request ID of an HTTP request or WebSocket upgrade.
	RequestIDKey Key = "request_id"

	// PanelSessionIDKey carries the ID of the panel session a log line belongs to.
	PanelSessionIDKey Key = "panel_session_id"

	// UserIDKey carries the ID of the signed-in dashboard operator.
	UserIDKey Key = "user_id"

	// TenantIDKey carries the client/tenant the current work is scoped to.
	TenantIDKey Key = "tenant_id"

	// PanelKey carries the panel name ("contacts" or "analytics").
	PanelKey Key = "panel"

	// CurrentUserKey stores the whole *domain.CurrentUserInfo after token validation.
	CurrentUserKey Key = "current_user"
)

// String makes Key satisfy fmt.Stringer.
func (c Key) String() string {
	return string(c)
}
