// ABOUTME: WebSocket client for the inbound audio stream
// ABOUTME: Handles connection, ordered message delivery and close notification
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives records in arrival order
type Handler interface {
	HandleMessage(data []byte)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(data []byte)

// HandleMessage calls f(data)
func (f HandlerFunc) HandleMessage(data []byte) { f(data) }

// Config holds client configuration
type Config struct {
	Endpoint         string
	Header           http.Header
	HandshakeTimeout time.Duration
	Logger           *zap.SugaredLogger

	// OnClose is called exactly once when the read loop ends. err is nil
	// when the close was requested locally.
	OnClose func(err error)
}

// Client represents a WebSocket client
type Client struct {
	config  Config
	conn    *websocket.Conn
	handler Handler
	logger  *zap.SugaredLogger

	mu        sync.Mutex
	connected bool
	closing   bool
	done      chan struct{}
	received  int64
}

// Dial connects to the endpoint and starts delivering records to handler
func Dial(ctx context.Context, config Config, handler Handler) (*Client, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.HandshakeTimeout,
	}

	config.Logger.Infow("connecting to stream", "endpoint", config.Endpoint)

	conn, _, err := dialer.DialContext(ctx, config.Endpoint, config.Header)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		config:    config,
		conn:      conn,
		handler:   handler,
		logger:    config.Logger,
		connected: true,
		done:      make(chan struct{}),
	}

	go c.readMessages()

	return c, nil
}

// readMessages delivers records one at a time, preserving arrival order
func (c *Client) readMessages() {
	var readErr error
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}

		c.mu.Lock()
		c.received++
		c.mu.Unlock()

		c.handler.HandleMessage(data)
	}

	c.mu.Lock()
	requested := c.closing
	c.connected = false
	c.mu.Unlock()

	c.conn.Close()
	// Closed before OnClose so the callback may call Close without deadlocking
	close(c.done)

	if requested {
		readErr = nil
	} else if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Infow("stream closed by server", "reason", readErr)
	} else {
		c.logger.Warnw("stream read error", "error", readErr)
	}

	if c.config.OnClose != nil {
		c.config.OnClose(readErr)
	}
}

// Close closes the connection and waits for the read loop to exit. It is
// safe to call more than once and from OnClose, but not from the handler.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = c.conn.Close()

	<-c.done
	c.logger.Infow("connection closed")
	return nil
}

// Done is closed when the read loop has exited
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Received returns the number of records read
func (c *Client) Received() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}
