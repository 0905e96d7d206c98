package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
)

const (
	pushSourceNATS = "nats"
	messagesTable  = "messages"
)

// ChangeSubscriber delivers messages-table change events published on
// <prefix>.<tenant> subjects.
type ChangeSubscriber struct {
	nc            *nats.Conn
	logger        domain.Logger
	subjectPrefix string
}

// NewChangeSubscriber connects to NATS. The returned cleanup drains the connection.
func NewChangeSubscriber(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*ChangeSubscriber, func(), error) {
	appFullCfg := cfgProvider.Get()
	natsCfg := appFullCfg.NATS

	reconnectWait := time.Duration(natsCfg.ReconnectWaitSeconds) * time.Second
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-changes-%s", appFullCfg.App.ServiceName, appFullCfg.Server.PodID)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(natsCfg.MaxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			appLogger.Error(ctx, "NATS error", "subscription", subject, "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if err != nil {
				appLogger.Warn(ctx, "NATS disconnected", "error", err.Error())
			}
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}

	appLogger.Info(ctx, "Connected to NATS server", "url", nc.ConnectedUrl())

	s := &ChangeSubscriber{
		nc:            nc,
		logger:        appLogger,
		subjectPrefix: natsCfg.MessageSubjectPrefix,
	}
	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		s.Close()
	}
	return s, cleanup, nil
}

// Close drains and closes the NATS connection.
func (s *ChangeSubscriber) Close() {
	if s.nc == nil || s.nc.IsClosed() {
		return
	}
	if err := s.nc.Drain(); err != nil {
		s.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
	}
}

// NatsConn returns the underlying NATS connection.
func (s *ChangeSubscriber) NatsConn() *nats.Conn {
	return s.nc
}

// Subject returns the subject the events of tenantID are published on.
// An empty tenant subscribes to every tenant.
func Subject(prefix, tenantID string) string {
	if tenantID == "" {
		return prefix + ".>"
	}
	return prefix + "." + tenantID
}

// SubscribeMessageChanges implements domain.MessageChangeSubscriber.
func (s *ChangeSubscriber) SubscribeMessageChanges(ctx context.Context, tenantID string, handler domain.MessageChangeHandler) (domain.Subscription, error) {
	if s.nc == nil {
		return nil, errors.New("NATS connection is not initialized")
	}
	subject := Subject(s.subjectPrefix, tenantID)
	logCtx := context.WithValue(ctx, contextkeys.TenantIDKey, tenantID)

	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		evt, err := DecodeChangeEvent(msg.Data)
		if err != nil {
			metrics.IncrementPushEvents(pushSourceNATS, "malformed")
			s.logger.Warn(logCtx, "Dropping malformed message change event", "subject", msg.Subject, "error", err.Error())
			return
		}
		metrics.IncrementPushEvents(pushSourceNATS, "received")
		handler(evt)
	})
	if err != nil {
		s.logger.Error(logCtx, "Failed to subscribe to message changes", "subject", subject, "error", err.Error())
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.logger.Info(logCtx, "Subscribed to message changes", "subject", subject)
	return natsSubscription{sub: sub}, nil
}

// DecodeChangeEvent parses a change event and rejects events of other tables.
func DecodeChangeEvent(data []byte) (domain.ChangeEvent, error) {
	var evt domain.ChangeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("decode change event: %w", err)
	}
	if evt.Table != "" && evt.Table != messagesTable {
		return evt, fmt.Errorf("unexpected table %q", evt.Table)
	}
	switch evt.Type {
	case domain.ChangeInsert, domain.ChangeUpdate, domain.ChangeDelete:
	default:
		return evt, fmt.Errorf("unknown change type %q", evt.Type)
	}
	return evt, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (n natsSubscription) Unsubscribe() error {
	if !n.sub.IsValid() {
		return nil
	}
	return n.sub.Unsubscribe()
}
