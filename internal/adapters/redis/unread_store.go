package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/rediskeys"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/safego"
)

const pushSourceRedis = "redis"

// UnreadStore implements domain.UnreadStore on Redis hashes
// (unread:<tenant> contact -> count) and unread_events:<tenant> pub/sub.
type UnreadStore struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewUnreadStore creates a new UnreadStore.
func NewUnreadStore(redisClient *redis.Client, logger domain.Logger) *UnreadStore {
	if redisClient == nil {
		panic("redisClient cannot be nil in NewUnreadStore")
	}
	if logger == nil {
		panic("logger cannot be nil in NewUnreadStore")
	}
	return &UnreadStore{redisClient: redisClient, logger: logger}
}

// UnreadCounts implements domain.UnreadStore. An empty tenant merges the
// counters of every tenant hash.
func (s *UnreadStore) UnreadCounts(ctx context.Context, tenantID string) (map[string]int, error) {
	keys, err := s.hashKeys(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(keys))
	if _, err := s.redisClient.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range keys {
			cmds = append(cmds, p.HGetAll(ctx, key))
		}
		return nil
	}); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Error(ctx, "Failed to read unread counters", "tenant_id", tenantID, "error", err.Error())
		return nil, fmt.Errorf("redis HGETALL unread counters: %w", err)
	}

	counts := make(map[string]int)
	for _, cmd := range cmds {
		for contactID, raw := range cmd.Val() {
			n, err := strconv.Atoi(raw)
			if err != nil {
				s.logger.Warn(ctx, "Ignoring non-numeric unread counter", "contact_id", contactID, "value", raw)
				continue
			}
			if n < 0 {
				n = 0
			}
			counts[contactID] += n
		}
	}
	return counts, nil
}

// hashKeys returns the counter hashes a tenant reads from.
func (s *UnreadStore) hashKeys(ctx context.Context, tenantID string) ([]string, error) {
	if tenantID != "" {
		return []string{rediskeys.UnreadCountsKey(tenantID)}, nil
	}
	var keys []string
	iter := s.redisClient.Scan(ctx, 0, rediskeys.UnreadCountsKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Error(ctx, "Failed to scan unread counter keys", "error", err.Error())
		return nil, fmt.Errorf("redis SCAN unread keys: %w", err)
	}
	return keys, nil
}

// MarkRead implements domain.UnreadStore. It clears the counter and publishes
// the change so other sessions of the tenant converge.
func (s *UnreadStore) MarkRead(ctx context.Context, tenantID, contactID string) error {
	keys, err := s.hashKeys(ctx, tenantID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(domain.UnreadUpdate{TenantID: tenantID, ContactID: contactID, Count: 0, At: &now})
	if err != nil {
		return fmt.Errorf("failed to marshal unread update: %w", err)
	}

	_, err = s.redisClient.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range keys {
			p.HDel(ctx, key, contactID)
		}
		p.Publish(ctx, rediskeys.UnreadEventsChannel(tenantID), string(payload))
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to mark contact read", "tenant_id", tenantID, "contact_id", contactID, "error", err.Error())
		return fmt.Errorf("redis mark read for contact '%s': %w", contactID, err)
	}
	s.logger.Debug(ctx, "Contact marked read", "tenant_id", tenantID, "contact_id", contactID)
	return nil
}

// SubscribeUnread implements domain.UnreadStore. An empty tenant listens on
// the channels of every tenant.
func (s *UnreadStore) SubscribeUnread(ctx context.Context, tenantID string, handler domain.UnreadHandler) (domain.Subscription, error) {
	var sub *redis.PubSub
	target := rediskeys.UnreadEventsChannel(tenantID)
	if tenantID == "" {
		target = rediskeys.UnreadEventsPattern()
		sub = s.redisClient.PSubscribe(ctx, target)
	} else {
		sub = s.redisClient.Subscribe(ctx, target)
	}

	// Receive confirms the subscription before messages start flowing.
	if _, err := sub.Receive(ctx); err != nil {
		s.logger.Error(ctx, "Failed to confirm Redis subscription", "target", target, "error", err.Error())
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to '%s': %w", target, err)
	}
	s.logger.Info(ctx, "Subscribed to unread updates", "target", target)

	ch := sub.Channel()
	safego.Execute(ctx, s.logger, "UnreadSubscription", func() {
		for msg := range ch {
			update, err := DecodeUnreadUpdate(msg.Channel, msg.Payload)
			if err != nil {
				metrics.IncrementPushEvents(pushSourceRedis, "malformed")
				s.logger.Warn(ctx, "Dropping malformed unread update", "channel", msg.Channel, "error", err.Error())
				continue
			}
			metrics.IncrementPushEvents(pushSourceRedis, "received")
			handler(update)
		}
		s.logger.Debug(ctx, "Unread subscription goroutine ended", "target", target)
	})
	return pubSubSubscription{sub: sub}, nil
}

// DecodeUnreadUpdate parses a pub/sub payload. The tenant defaults to the
// one encoded in the channel name.
func DecodeUnreadUpdate(channel, payload string) (domain.UnreadUpdate, error) {
	var u domain.UnreadUpdate
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return u, fmt.Errorf("decode unread update: %w", err)
	}
	if u.ContactID == "" {
		return u, errors.New("unread update without contact_id")
	}
	if u.TenantID == "" {
		u.TenantID = rediskeys.TenantFromUnreadChannel(channel)
	}
	if u.Count < 0 {
		u.Count = 0
	}
	return u, nil
}

type pubSubSubscription struct {
	sub *redis.PubSub
}

func (p pubSubSubscription) Unsubscribe() error {
	return p.sub.Close()
}
