package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

const selectMessages = `
SELECT id::text, created_at, response_time, response, message, chat_id::text, user_id::text, client_id::text
FROM messages`

type messageRow struct {
	ID           string     `db:"id"`
	CreatedAt    time.Time  `db:"created_at"`
	ResponseTime *time.Time `db:"response_time"`
	Response     *string    `db:"response"`
	Message      *string    `db:"message"`
	ChatID       *string    `db:"chat_id"`
	UserID       *string    `db:"user_id"`
	ClientID     *string    `db:"client_id"`
}

func (r messageRow) toEvent() domain.MessageEvent {
	return domain.MessageEvent{
		ID:         r.ID,
		Timestamp:  r.CreatedAt,
		ResponseAt: r.ResponseTime,
		Response:   r.Response,
		Message:    deref(r.Message),
		ChatID:     deref(r.ChatID),
		UserID:     deref(r.UserID),
		ClientID:   deref(r.ClientID),
	}
}

// MessageRepository runs the message queries of both panels.
type MessageRepository struct {
	pool   *pgxpool.Pool
	config config.Provider
}

// NewMessageRepository creates a MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool, cfgProvider config.Provider) *MessageRepository {
	return &MessageRepository{pool: pool, config: cfgProvider}
}

// ListResponded implements domain.MessageRepository.
func (r *MessageRepository) ListResponded(ctx context.Context, since time.Time, tenantID string) ([]domain.MessageEvent, error) {
	q := newQuery(selectMessages)
	q.whereNotNull("response_time")
	q.where("created_at >= ?", since)
	q.whereTenant(tenantID)
	return r.list(ctx, "responded", q)
}

// ListChatActivity implements domain.MessageRepository.
func (r *MessageRepository) ListChatActivity(ctx context.Context, since time.Time, tenantID string) ([]domain.MessageEvent, error) {
	q := newQuery(selectMessages)
	q.whereNotNull("chat_id")
	q.where("created_at >= ?", since)
	q.whereTenant(tenantID)
	return r.list(ctx, "chat activity", q)
}

// ListUserActivity implements domain.MessageRepository.
func (r *MessageRepository) ListUserActivity(ctx context.Context, since time.Time, tenantID string) ([]domain.MessageEvent, error) {
	q := newQuery(selectMessages)
	q.whereNotNull("user_id")
	q.where("created_at >= ?", since)
	q.whereTenant(tenantID)
	return r.list(ctx, "user activity", q)
}

// ListRecent implements domain.MessageRepository.
func (r *MessageRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]domain.MessageEvent, error) {
	q := newQuery(selectMessages)
	q.whereTenant(tenantID)
	q.orderBy("created_at DESC")
	q.limitTo(limit)
	return r.list(ctx, "recent", q)
}

// LastMessageTimes implements domain.MessageRepository.
func (r *MessageRepository) LastMessageTimes(ctx context.Context, tenantID string) (map[string]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout(r.config.Get().Postgres))
	defer cancel()

	q := newQuery(`SELECT user_id::text AS user_id, MAX(created_at) AS last_at FROM messages`)
	q.whereNotNull("user_id")
	q.whereTenant(tenantID)
	sql := q.sql() + "\nGROUP BY user_id"

	rows, err := r.pool.Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("query last message times: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			userID string
			lastAt time.Time
		)
		if err := rows.Scan(&userID, &lastAt); err != nil {
			return nil, fmt.Errorf("scan last message time: %w", err)
		}
		out[userID] = lastAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last message times: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) list(ctx context.Context, shape string, q *query) ([]domain.MessageEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout(r.config.Get().Postgres))
	defer cancel()

	rows, err := r.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("query %s messages: %w", shape, err)
	}
	msgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, fmt.Errorf("scan %s messages: %w", shape, err)
	}

	events := make([]domain.MessageEvent, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, m.toEvent())
	}
	return events, nil
}
