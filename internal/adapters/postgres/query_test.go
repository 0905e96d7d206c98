package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryNumbersPlaceholders(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	q := newQuery(selectMessages)
	q.whereNotNull("response_time")
	q.where("created_at >= ?", since)
	q.whereTenant("t1")
	q.orderBy("created_at DESC")
	q.limitTo(10)

	want := `SELECT id::text, created_at, response_time, response, message, chat_id::text, user_id::text, client_id::text
FROM messages
WHERE response_time IS NOT NULL AND created_at >= $1 AND client_id = $2
ORDER BY created_at DESC
LIMIT 10`
	assert.Equal(t, want, q.sql())
	assert.Equal(t, []any{since, "t1"}, q.args)
}

func TestQueryWithoutTenantIsUnscoped(t *testing.T) {
	q := newQuery("SELECT 1 FROM users")
	q.whereTenant("")
	assert.Equal(t, "SELECT 1 FROM users", q.sql())
	assert.Empty(t, q.args)
}

func TestMessageRowToEvent(t *testing.T) {
	chat := "c1"
	ev := messageRow{ID: "m1", ChatID: &chat}.toEvent()
	assert.Equal(t, "m1", ev.ID)
	assert.Equal(t, "c1", ev.ChatID)
	assert.Empty(t, ev.UserID)
	assert.False(t, ev.HasResponse())
}
