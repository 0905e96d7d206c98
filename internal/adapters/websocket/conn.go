package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/safego"
)

const defaultMessageBufferSize = 64

// Connection wraps a websocket.Conn with a buffered writer goroutine. When
// the buffer is full the oldest queued message is dropped; panel updates
// are full snapshots, so only the newest one matters.
type Connection struct {
	wsConn            *websocket.Conn
	logger            domain.Logger
	connCtx           context.Context
	cancelConnCtxFunc context.CancelFunc
	writeTimeout      time.Duration
	remoteAddrStr     string

	mu            sync.Mutex // guards wsConn writes and lastPongTime
	lastPongTime  time.Time
	messageBuffer chan []byte

	writerWg  sync.WaitGroup
	closeOnce sync.Once
}

// NewConnection creates a managed connection and starts its writer.
func NewConnection(
	connCtx context.Context,
	cancelFunc context.CancelFunc,
	wsConn *websocket.Conn,
	remoteAddr string,
	logger domain.Logger,
	cfgProvider config.Provider,
) *Connection {
	appCfg := cfgProvider.Get().App
	bufferCap := appCfg.WebsocketMessageBufferSize
	if bufferCap <= 0 {
		bufferCap = defaultMessageBufferSize
	}
	writeTimeout := time.Duration(appCfg.WriteTimeoutSeconds) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	c := &Connection{
		wsConn:            wsConn,
		logger:            logger,
		connCtx:           connCtx,
		cancelConnCtxFunc: cancelFunc,
		writeTimeout:      writeTimeout,
		remoteAddrStr:     remoteAddr,
		lastPongTime:      time.Now(),
		messageBuffer:     make(chan []byte, bufferCap),
	}
	c.startWriter()
	return c
}

func (c *Connection) startWriter() {
	c.writerWg.Add(1)
	safego.Execute(c.connCtx, c.logger, "WebSocketWriter", func() {
		defer c.writerWg.Done()
		for {
			select {
			case <-c.connCtx.Done():
				return
			case msgBytes := <-c.messageBuffer:
				// A fresh context lets an in-progress write finish while the connection winds down.
				writeCtx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
				c.mu.Lock()
				err := c.wsConn.Write(writeCtx, websocket.MessageText, msgBytes)
				c.mu.Unlock()
				cancel()

				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						c.logger.Info(c.connCtx, "WebSocket write canceled or timed out, connection likely closing", "error", err.Error())
					} else {
						c.logger.Error(c.connCtx, "Failed to write message to WebSocket", "error", err.Error())
					}
					c.cancelConnCtxFunc()
					return
				}
			}
		}
	})
}

// Context returns the context of the connection's lifetime.
func (c *Connection) Context() context.Context {
	return c.connCtx
}

// RemoteAddr returns the client address.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddrStr
}

// WriteJSON queues a message for the writer goroutine.
func (c *Connection) WriteJSON(msg BaseMessage) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error(c.connCtx, "Failed to marshal JSON for WriteJSON", "error", err.Error(), "messageType", msg.Type)
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := c.connCtx.Err(); err != nil {
		return err
	}

	for {
		select {
		case c.messageBuffer <- msgBytes:
			metrics.IncrementMessagesSent(msg.Type)
			return nil
		default:
		}
		// Full: drop the oldest queued message and try again.
		select {
		case <-c.messageBuffer:
			metrics.IncrementMessagesDropped()
			c.logger.Warn(c.connCtx, "Dropped oldest queued message, client is slow", "messageType", msg.Type)
		default:
		}
	}
}

// PushContacts implements application.PanelSink.
func (c *Connection) PushContacts(ctx context.Context, payload domain.ContactsPayload) {
	if err := c.WriteJSON(NewContactsMessage(payload)); err != nil && c.connCtx.Err() == nil {
		c.logger.Error(ctx, "Failed to queue contacts message", "error", err.Error())
	}
}

// PushAnalytics implements application.PanelSink.
func (c *Connection) PushAnalytics(ctx context.Context, payload domain.AnalyticsPayload) {
	if err := c.WriteJSON(NewAnalyticsMessage(payload)); err != nil && c.connCtx.Err() == nil {
		c.logger.Error(ctx, "Failed to queue analytics message", "error", err.Error())
	}
}

// SendError queues an "error" message without closing the connection.
func (c *Connection) SendError(errResp domain.ErrorResponse) {
	if err := c.WriteJSON(NewErrorMessage(errResp)); err != nil && c.connCtx.Err() == nil {
		c.logger.Error(c.connCtx, "Failed to queue error message", "error", err.Error(), "code", string(errResp.Code))
	}
}

// ReadMessage reads the next data message. Control frames are handled by the library.
func (c *Connection) ReadMessage(ctx context.Context) (websocket.MessageType, []byte, error) {
	return c.wsConn.Read(ctx)
}

// Ping sends a ping and waits for the pong.
func (c *Connection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := c.wsConn.Ping(pingCtx); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastPongTime = time.Now()
	c.mu.Unlock()
	return nil
}

// LastPongTime returns when the last pong arrived.
func (c *Connection) LastPongTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPongTime
}

// Close stops the writer and closes the socket. Only the first call has an effect.
func (c *Connection) Close(statusCode websocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.logger.Info(c.connCtx, "Closing WebSocket connection", "statusCode", int(statusCode), "reason", reason)
		c.cancelConnCtxFunc()
		c.writerWg.Wait()
		err = c.wsConn.Close(statusCode, reason)
	})
	return err
}

// CloseWithError sends an error message and closes with the matching close code.
func (c *Connection) CloseWithError(errResp domain.ErrorResponse, reason string) error {
	c.logger.Warn(c.connCtx, "Closing connection with error", "code", string(errResp.Code), "message", errResp.Message, "reason", reason)
	msgBytes, err := json.Marshal(NewErrorMessage(errResp))
	if err == nil {
		writeCtx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		c.mu.Lock()
		_ = c.wsConn.Write(writeCtx, websocket.MessageText, msgBytes)
		c.mu.Unlock()
		cancel()
	}
	return c.Close(CloseCode(errResp.Code), reason)
}

// CloseCode maps an error code to a WebSocket close status.
func CloseCode(code domain.ErrorCode) websocket.StatusCode {
	switch code {
	case domain.ErrInvalidToken, domain.ErrForbidden:
		return websocket.StatusCode(4403)
	case domain.ErrInternal:
		return websocket.StatusInternalError
	default:
		return websocket.StatusPolicyViolation
	}
}
