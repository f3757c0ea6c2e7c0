package poloniex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient handles the push API connection and message routing.
type WSClient struct {
	url      string
	channels []int
	retry    time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func([]byte)
	logger  *zap.Logger
}

// NewWSClient creates a client that subscribes to channels on every (re)connect.
func NewWSClient(url string, logger *zap.Logger, channels ...int) *WSClient {
	if url == "" {
		url = DefaultWSURL
	}
	return &WSClient{
		url:      url,
		channels: channels,
		retry:    3 * time.Second,
		logger:   logger,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect dials the server and sends the subscriptions. It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	for _, ch := range c.channels {
		subMsg := map[string]interface{}{
			"command": "subscribe",
			"channel": ch,
		}
		if err := conn.WriteJSON(subMsg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("websocket subscribe failed: %w", err)
		}
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	c.logger.Info("WebSocket connected", zap.String("url", c.url), zap.Ints("channels", c.channels))
	return nil
}

// Listen reads frames until ctx is done, reconnecting after read errors.
func (c *WSClient) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("websocket not connected")
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("WebSocket read error", zap.Error(err))

			// Retry reconnecting until the context ends
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.retry):
				}
				if err := c.Connect(ctx); err != nil {
					c.logger.Warn("Retrying reconnect...")
					continue
				}
				c.logger.Info("Reconnected successfully")
				break
			}
			continue
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// Close closes the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
