package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("protocol: not connected")
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("protocol: client closed")
)

const (
	DefaultPingInterval    = 25 * time.Second
	DefaultMaxMessageBytes = 64 << 20

	writeWait = 10 * time.Second
)

// Options tune a Client. Zero values select defaults.
type Options struct {
	PingInterval     time.Duration
	MaxMessageBytes  int64
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Client owns one WebSocket connection to the rendering backend. It turns
// intents into wire messages and wire messages into Events; it holds no
// playback state and never reconnects on its own.
type Client struct {
	url    string
	opts   Options
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	closed  bool
	handler func(Event)
}

// NewClient creates a client for the given ws:// or wss:// URL.
func NewClient(url string, opts Options) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	dialer := *websocket.DefaultDialer
	if opts.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = opts.HandshakeTimeout
	}
	return &Client{
		url:    url,
		opts:   opts,
		dialer: &dialer,
	}
}

// OnEvent sets the handler for inbound events. The handler runs on the
// client's read goroutine, or on the caller of Open for dial failures.
func (c *Client) OnEvent(handler func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Open dials the backend and starts reading. A dial failure is reported both
// as the returned error and as a ConnectionError event. Open on an already
// open client is a no-op.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		err = fmt.Errorf("protocol dial: %w", err)
		slog.Warn("protocol connection failed", "url", c.url, "error", err)
		c.emit(ConnectionError{Err: err})
		return err
	}

	readTimeout := 3 * c.opts.PingInterval
	conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		if c.closed {
			return ErrClosed
		}
		return nil
	}
	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	slog.Info("protocol connected", "url", c.url)
	go c.readLoop(conn, done, readTimeout)
	go c.pingLoop(conn, done)
	return nil
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one intent. Without an open connection the intent is dropped
// with a warning and ErrNotConnected is returned; nothing is queued.
func (c *Client) Send(intent Intent) error {
	data, err := Encode(intent)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		slog.Warn("protocol send dropped, not connected", "action", intent.action())
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("protocol send %s: %w", intent.action(), err)
	}
	slog.Debug("protocol sent", "action", intent.action(), "bytes", len(data))
	return nil
}

// Close shuts the connection down for good. It is safe to call any number
// of times, before Open, and after the connection dropped.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.conn.Close()
	c.conn = nil
	close(c.done)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}, readTimeout time.Duration) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, done, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		ev, err := Decode(data)
		if err != nil {
			slog.Warn("protocol dropped malformed message", "error", err, "bytes", len(data))
			continue
		}
		c.emit(ev)
	}
}

// drop forgets conn after a read failure. A drop caused by Close is silent;
// anything else is reported as a ConnectionError.
func (c *Client) drop(conn *websocket.Conn, done chan struct{}, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(done)
	closed := c.closed
	c.mu.Unlock()

	conn.Close()
	if closed {
		return
	}
	err = fmt.Errorf("protocol read: %w", err)
	slog.Warn("protocol connection lost", "url", c.url, "error", err)
	c.emit(ConnectionError{Err: err})
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("protocol ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
