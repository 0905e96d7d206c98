package domain

import "time"

// Account tables a dashboard operator can be stored in.
const (
	SessionTableAdmins  = "admins"
	SessionTableClients = "clients"
)

// CurrentUserInfo describes the signed-in dashboard operator. It is read-only
// here and only used for display and tenant scoping.
type CurrentUserInfo struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	Table           string    `json:"table"`
	TenantID        string    `json:"tenant_id,omitempty"`
	CanViewAllUsers bool      `json:"can_view_all_users"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// EffectiveTenant resolves the tenant a panel may be scoped to.
// Operators limited to their own tenant cannot request another one; operators
// who may view all users get exactly what they ask for ("" = every tenant).
func (u *CurrentUserInfo) EffectiveTenant(requested string) (string, error) {
	if u.CanViewAllUsers {
		return requested, nil
	}
	if requested != "" && requested != u.TenantID {
		return "", ErrForbiddenTenant
	}
	return u.TenantID, nil
}
