package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultAPIVersion = "2024-10-01-preview"

// Config carries everything needed to open one realtime connection.
type Config struct {
	Endpoint     string
	Deployment   string
	APIVersion   string
	APIKey       string
	Voice        string
	Instructions string
}

// Client is one outbound realtime WebSocket connection. It is created per
// call, configured with session.update at dial time, and torn down with the
// call.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	errMu   sync.Mutex

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once

	lastClose string
}

// Dial opens the connection, sends the initial session.update, and starts the
// receive loop. The returned client's Events channel closes when the
// connection dies.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("realtime api key is required")
	}
	wsURL, err := buildRealtimeWSURL(cfg)
	if err != nil {
		return nil, err
	}
	// Azure-style key header; Authorization covers endpoints that expect a
	// bearer token instead.
	header := http.Header{}
	header.Set("api-key", strings.TrimSpace(cfg.APIKey))
	header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:   conn,
		events: make(chan Event, 256),
		closed: make(chan struct{}),
	}

	update, err := MarshalSessionUpdate(cfg.Instructions, cfg.Voice)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := c.writeMessage(ctx, update); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send session.update: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// SendAudio forwards one caller audio payload as input_audio_buffer.append.
// After Close it is a no-op so the telephony leg can keep draining without
// error handling churn during teardown.
func (c *Client) SendAudio(ctx context.Context, pcm []byte) error {
	if c == nil {
		return nil
	}
	select {
	case <-c.closed:
		return nil
	default:
	}
	msg, err := MarshalInputAudioAppend(pcm)
	if err != nil {
		return err
	}
	return c.writeMessage(ctx, msg)
}

// Events returns the inbound event stream. The channel is closed when the
// connection is closed or the read loop fails.
func (c *Client) Events() <-chan Event {
	if c == nil {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	return c.events
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		close(c.closed)
		c.setLastClose("closed")
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setLastClose(strings.TrimSpace(err.Error()))
			return
		}
		select {
		case c.events <- ParseEvent(data):
		case <-c.closed:
			return
		}
	}
}

func (c *Client) writeMessage(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		reason := c.failureReason()
		if reason == "" {
			return err
		}
		return fmt.Errorf("%w (realtime %s)", err, reason)
	}
	return nil
}

func buildRealtimeWSURL(cfg Config) (string, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("realtime endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid realtime endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/openai/realtime"
	}
	q := u.Query()
	if deployment := strings.TrimSpace(cfg.Deployment); deployment != "" {
		q.Set("deployment", deployment)
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	q.Set("api-version", apiVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) setLastClose(msg string) {
	if c == nil {
		return
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" {
		return
	}
	if len(msg) > 300 {
		msg = msg[:300] + "…"
	}
	c.errMu.Lock()
	c.lastClose = msg
	c.errMu.Unlock()
}

func (c *Client) failureReason() string {
	if c == nil {
		return ""
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.lastClose == "" {
		return ""
	}
	return "close=" + c.lastClose
}
