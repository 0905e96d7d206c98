package domain

import (
	"math"
	"time"
)

const (
	// AnalyticsWindow is the trailing window every aggregate is computed over.
	AnalyticsWindow = 24 * time.Hour
	// ActivityFeedLimit bounds the recent activity list.
	ActivityFeedLimit = 10

	activityTitleExcerptRunes = 60
)

// ActivityKind tells whether a feed item is an incoming message or a sent response.
type ActivityKind string

const (
	ActivityMessage  ActivityKind = "message"
	ActivityResponse ActivityKind = "response"
)

// ConnectionState is the health indicator shown by the analytics panel.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionConnected  ConnectionState = "connected"
	ConnectionDegraded   ConnectionState = "degraded"
)

// MessageEvent is one row of the messages table. Empty strings and nil
// pointers mean the column is null.
type MessageEvent struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"created_at"`
	ResponseAt *time.Time `json:"response_time,omitempty"`
	Response   *string    `json:"response,omitempty"`
	Message    string     `json:"message,omitempty"`
	ChatID     string     `json:"chat_id,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	ClientID   string     `json:"client_id,omitempty"`
}

// HasResponse reports whether a response payload is present.
func (e MessageEvent) HasResponse() bool {
	return e.Response != nil
}

// ActivityItem is a projected MessageEvent for the activity feed.
type ActivityItem struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	Title     string       `json:"title"`
	Timestamp time.Time    `json:"timestamp"`
	ChatID    string       `json:"chat_id,omitempty"`
}

// ActivitySummary counts window events by recency.
type ActivitySummary struct {
	Last24Hours  int `json:"last_24_hours"`
	LastHour     int `json:"last_hour"`
	Last5Minutes int `json:"last_5_minutes"`
}

// AnalyticsSnapshot is recomputed wholesale on every refresh.
type AnalyticsSnapshot struct {
	AverageResponseMinutes float64         `json:"average_response_minutes"`
	CompletionRate         int             `json:"completion_rate"`
	TotalChats             int             `json:"total_chats"`
	UniqueUsers            int             `json:"unique_users"`
	RecentActivity         []ActivityItem  `json:"recent_activity"`
	Summary                ActivitySummary `json:"summary"`
	ComputedAt             time.Time       `json:"computed_at"`
}

// Clone returns a copy whose feed can be modified independently.
func (s AnalyticsSnapshot) Clone() AnalyticsSnapshot {
	s.RecentActivity = append([]ActivityItem(nil), s.RecentActivity...)
	return s
}

// WindowStart returns the start of the trailing analytics window ending at now.
func WindowStart(now time.Time) time.Time {
	return now.Add(-AnalyticsWindow)
}

// AverageResponseMinutes is the mean delay between a message and its response,
// in minutes rounded to one decimal. Events lacking either timestamp are ignored.
func AverageResponseMinutes(events []MessageEvent) float64 {
	var total time.Duration
	n := 0
	for _, e := range events {
		if e.Timestamp.IsZero() || e.ResponseAt == nil || e.ResponseAt.IsZero() {
			continue
		}
		total += e.ResponseAt.Sub(e.Timestamp)
		n++
	}
	if n == 0 {
		return 0
	}
	avg := total.Minutes() / float64(n)
	return math.Round(avg*10) / 10
}

// CompletionRate is the percentage of distinct chats with at least one response.
func CompletionRate(events []MessageEvent) int {
	all := make(map[string]struct{})
	answered := make(map[string]struct{})
	for _, e := range events {
		if e.ChatID == "" {
			continue
		}
		all[e.ChatID] = struct{}{}
		if e.HasResponse() {
			answered[e.ChatID] = struct{}{}
		}
	}
	if len(all) == 0 {
		return 0
	}
	return int(math.Round(float64(len(answered)) / float64(len(all)) * 100))
}

// DistinctChats counts distinct non-empty chat IDs.
func DistinctChats(events []MessageEvent) int {
	return countDistinct(events, func(e MessageEvent) string { return e.ChatID })
}

// DistinctUsers counts distinct non-empty end-user IDs.
func DistinctUsers(events []MessageEvent) int {
	return countDistinct(events, func(e MessageEvent) string { return e.UserID })
}

func countDistinct(events []MessageEvent, key func(MessageEvent) string) int {
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if k := key(e); k != "" {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}

// SummarizeActivity buckets window events by age relative to now.
func SummarizeActivity(events []MessageEvent, now time.Time) ActivitySummary {
	var s ActivitySummary
	for _, e := range events {
		if e.Timestamp.IsZero() {
			continue
		}
		age := now.Sub(e.Timestamp)
		if age < 0 || age > AnalyticsWindow {
			continue
		}
		s.Last24Hours++
		if age <= time.Hour {
			s.LastHour++
		}
		if age <= 5*time.Minute {
			s.Last5Minutes++
		}
	}
	return s
}

// ProjectActivity turns an event into a feed item.
func ProjectActivity(e MessageEvent) ActivityItem {
	item := ActivityItem{
		ID:        e.ID,
		Kind:      ActivityMessage,
		Timestamp: e.Timestamp,
		ChatID:    e.ChatID,
	}
	title, text := "New message", e.Message
	if e.HasResponse() {
		item.Kind = ActivityResponse
		title, text = "Response sent", *e.Response
	}
	if excerpt := truncateRunes(text, activityTitleExcerptRunes); excerpt != "" {
		title += ": " + excerpt
	}
	item.Title = title
	return item
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// ProjectRecent projects up to limit events, in the given order.
func ProjectRecent(events []MessageEvent, limit int) []ActivityItem {
	if len(events) > limit {
		events = events[:limit]
	}
	out := make([]ActivityItem, 0, len(events))
	for _, e := range events {
		out = append(out, ProjectActivity(e))
	}
	return out
}

// PrependActivity returns a new feed with item first, without a previous
// entry of the same ID, truncated to limit.
func PrependActivity(feed []ActivityItem, item ActivityItem, limit int) []ActivityItem {
	out := make([]ActivityItem, 0, limit)
	out = append(out, item)
	for _, existing := range feed {
		if len(out) >= limit {
			break
		}
		if existing.ID == item.ID {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// AnalyticsInputs are the four independently fetched event lists.
type AnalyticsInputs struct {
	Responded    []MessageEvent
	ChatActivity []MessageEvent
	UserActivity []MessageEvent
	Recent       []MessageEvent
}

// ComputeSnapshot derives every metric from its own input list.
func ComputeSnapshot(in AnalyticsInputs, now time.Time) AnalyticsSnapshot {
	return AnalyticsSnapshot{
		AverageResponseMinutes: AverageResponseMinutes(in.Responded),
		CompletionRate:         CompletionRate(in.ChatActivity),
		TotalChats:             DistinctChats(in.ChatActivity),
		UniqueUsers:            DistinctUsers(in.UserActivity),
		RecentActivity:         ProjectRecent(in.Recent, ActivityFeedLimit),
		Summary:                SummarizeActivity(in.ChatActivity, now),
		ComputedAt:             now,
	}
}
