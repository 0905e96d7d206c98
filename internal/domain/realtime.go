package domain

// ChangeType is the kind of row change carried by a realtime event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a realtime notification for the messages table, as published
// by the upstream change-data-capture pipeline.
type ChangeEvent struct {
	EventID   string        `json:"event_id"`
	EventTime string        `json:"event_time"`
	Type      ChangeType    `json:"type"`
	Table     string        `json:"table"`
	TenantID  string        `json:"client_id,omitempty"`
	New       *MessageEvent `json:"new,omitempty"`
	Old       *MessageEvent `json:"old,omitempty"`
}

// RowTenant returns the tenant of the changed row, preferring the new row.
func (e ChangeEvent) RowTenant() string {
	switch {
	case e.New != nil && e.New.ClientID != "":
		return e.New.ClientID
	case e.Old != nil && e.Old.ClientID != "":
		return e.Old.ClientID
	default:
		return e.TenantID
	}
}
