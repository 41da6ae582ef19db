// Package realtime maintains the persistent event socket to the DCA-Auth
// service. Server frames of the form {"event": ..., "data": ...} are routed
// into a Publisher, normally the client's emitter.
//
// The channel never reconnects on its own. Callers that want reconnection
// listen for EventDisconnected and call Connect again.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/opengovern/dca-auth-go/apierr"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Time to wait for the server to answer a close frame
	closeGracePeriod = 2 * time.Second

	maxMessageSize = 1 << 20
)

// Lifecycle events emitted through the Publisher.
const (
	EventConnected    = "realtime:connected"
	EventDisconnected = "realtime:disconnected"
	EventError        = "realtime:error"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Publisher receives routed server events.
type Publisher interface {
	Emit(event string, payload any)
}

// Message is one frame in either direction.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DisconnectEvent is the payload of EventDisconnected.
type DisconnectEvent struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
	// Requested is true when Disconnect initiated the close.
	Requested bool `json:"requested"`
}

type nopPublisher struct{}

func (nopPublisher) Emit(string, any) {}

type Channel struct {
	url       string
	dialer    *websocket.Dialer
	header    http.Header
	publisher Publisher
	logger    *slog.Logger
	warn      rate.Sometimes

	mu      sync.Mutex
	state   State
	token   string
	conn    *websocket.Conn
	done    chan struct{}
	closing bool

	writeMu sync.Mutex

	// set while the read loop is inside publisher.Emit
	emitting atomic.Bool
}

type Option func(*Channel)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(c *Channel) {
		if p != nil {
			c.publisher = p
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithHeader adds handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Channel) {
		for k, vs := range h {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
	}
}

func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:       url,
		dialer:    websocket.DefaultDialer,
		header:    http.Header{},
		publisher: nopPublisher{},
		logger:    slog.Default(),
		warn:      rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "realtime"))
	return c
}

// URL returns the endpoint the channel dials.
func (c *Channel) URL() string { return c.url }

// SetAuth sets the bearer token used by the next Connect.
func (c *Channel) SetAuth(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server. It is a no-op while already connecting or
// connected.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	token := c.token
	c.mu.Unlock()

	header := c.header.Clone()
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()

		wsErr := apierr.Wrap(apierr.KindWebSocket, err, "realtime connection failed").WithDetail("url", c.url)
		if resp != nil {
			wsErr.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		c.logger.WarnContext(ctx, "realtime dial failed", slog.String("url", c.url), slog.String("error", err.Error()))
		c.publisher.Emit(EventError, wsErr)
		return wsErr
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.closing = false
	c.state = StateConnected
	c.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop(conn, done)
	go c.pingLoop(conn, done)

	c.logger.InfoContext(ctx, "realtime connected", slog.String("url", c.url))
	c.publisher.Emit(EventConnected, nil)
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn, done chan struct{}) {
	var readErr error
	defer func() {
		c.closed(conn, readErr)
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.warn.Do(func() {
				c.logger.Warn("dropping malformed realtime frame", slog.Int("bytes", len(data)))
			})
			continue
		}

		var payload any
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				payload = msg.Data
			}
		}
		c.emitting.Store(true)
		c.publisher.Emit(msg.Event, payload)
		c.emitting.Store(false)
	}
}

// closed moves the channel to Disconnected once the read loop has ended.
func (c *Channel) closed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	requested := c.closing
	c.conn = nil
	c.closing = false
	c.state = StateDisconnected
	c.mu.Unlock()

	_ = conn.Close()

	ev := DisconnectEvent{Code: websocket.CloseAbnormalClosure, Requested: requested}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		ev.Code = closeErr.Code
		ev.Reason = closeErr.Text
	}
	if !requested && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Error("unexpected realtime close", slog.String("error", err.Error()))
		c.publisher.Emit(EventError, apierr.Wrap(apierr.KindWebSocket, err, "realtime connection lost"))
	}
	c.logger.Info("realtime disconnected", slog.Int("code", ev.Code), slog.Bool("requested", requested))
	c.publisher.Emit(EventDisconnected, ev)
}

func (c *Channel) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send writes one {event, data} frame.
func (c *Channel) Send(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return apierr.New(apierr.KindWebSocket, "realtime channel is not connected")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return apierr.Wrap(apierr.KindWebSocket, err, "failed to encode realtime message")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Message{Event: event, Data: raw}); err != nil {
		return apierr.Wrap(apierr.KindWebSocket, err, "failed to send realtime message")
	}
	return nil
}

// Disconnect closes the connection and waits for the read loop to finish.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
	}

	if c.emitting.Load() {
		// Called from a listener on the read loop: done cannot close until
		// we return. Bound the wait for the server's close frame instead.
		_ = conn.SetReadDeadline(time.Now().Add(closeGracePeriod))
		return nil
	}

	select {
	case <-done:
	case <-time.After(closeGracePeriod):
		_ = conn.Close()
	}
	return nil
}
