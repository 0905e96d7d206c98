package rediskeys

import (
	"fmt"
	"strings"
)

// allTenants is the tenant segment used when a key or channel is not tenant scoped.
const allTenants = "_all"

func tenantSegment(tenantID string) string {
	if tenantID == "" {
		return allTenants
	}
	return tenantID
}

// UnreadCountsKey is the hash holding unread counters per contact for a tenant.
func UnreadCountsKey(tenantID string) string {
	return fmt.Sprintf("unread:%s", tenantSegment(tenantID))
}

// UnreadEventsChannel is the pub/sub channel carrying unread counter updates for a tenant.
func UnreadEventsChannel(tenantID string) string {
	return fmt.Sprintf("unread_events:%s", tenantSegment(tenantID))
}

// UnreadEventsPattern matches the unread channels of every tenant.
func UnreadEventsPattern() string {
	return "unread_events:*"
}

// TenantFromUnreadChannel extracts the tenant from an unread_events channel name.
// It returns "" for the unscoped channel.
func TenantFromUnreadChannel(channel string) string {
	tenant, ok := strings.CutPrefix(channel, "unread_events:")
	if !ok || tenant == allTenants {
		return ""
	}
	return tenant
}
