// Package client talks to a pinger server over its HTTP API and WebSocket endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"pinger/domain"
	"pinger/protocol"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type Client struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
}

// APIError is a non-2xx answer of the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pinger: %d %s", e.Status, e.Message)
}

type Session struct {
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expires_in"`
	SessionID string          `json:"session_id"`
	Identity  domain.Identity `json:"identity"`
}

type PingResult struct {
	PingID       string                `json:"ping_id"`
	Result       domain.DeliveryStatus `json:"result"`
	TargetOnline bool                  `json:"target_online"`
}

type Health struct {
	Status         string  `json:"status"`
	ConnectedUsers int     `json:"connected_users"`
	QueuedPings    int     `json:"queued_pings"`
	ActiveSessions int     `json:"active_sessions"`
	PingsDelivered uint64  `json:"pings_delivered"`
	PingsQueued    uint64  `json:"pings_queued"`
	PingsDropped   uint64  `json:"pings_dropped"`
	RSSBytes       uint64  `json:"rss_bytes"`
	CPUPercent     float64 `json:"cpu_percent"`
	Goroutines     int     `json:"goroutines"`
}

// New accepts "host:port" or a full http(s) URL.
func New(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *Client) Login(ctx context.Context, identity domain.Identity) (Session, error) {
	var session Session
	body := map[string]string{"username": identity.Username, "unique_id": identity.UniqueID}
	_, err := c.do(ctx, http.MethodPost, "/login", "", body, &session)
	return session, err
}

// Ping sends a ping to the target. from may be nil to let the server use the session identity.
func (c *Client) Ping(ctx context.Context, token string, from *domain.Identity, to domain.Identity) (PingResult, error) {
	var result PingResult
	body := map[string]*domain.Identity{"to": &to}
	if from != nil {
		body["from"] = from
	}
	_, err := c.do(ctx, http.MethodPost, "/ping", token, body, &result)
	return result, err
}

func (c *Client) Clients(ctx context.Context, token string) ([]domain.Identity, error) {
	var clients []domain.Identity
	_, err := c.do(ctx, http.MethodGet, "/clients", token, nil, &clients)
	return clients, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	_, err := c.do(ctx, http.MethodGet, "/health", "", nil, &health)
	return health, err
}

// Listen opens the WebSocket channel with a fresh token.
func (c *Client) Listen(ctx context.Context, token string) (*Listener, error) {
	u := *c.baseURL
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, readAPIError(resp)
		}
		return nil, err
	}
	return &Listener{conn: conn}, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, readAPIError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

// Listener reads frames from an open channel.
type Listener struct {
	conn *websocket.Conn
}

// Next blocks until the next frame. The raw keepalive answer decodes as a Pong.
func (l *Listener) Next() (protocol.Frame, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == protocol.KeepaliveEcho {
		return protocol.Pong{}, nil
	}
	return protocol.Decode(data)
}

func (l *Listener) Send(frame protocol.Frame) error {
	b, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, b)
}

// SendText writes a raw text message, used for the legacy keepalive.
func (l *Listener) SendText(text string) error {
	return l.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (l *Listener) SetReadDeadline(t time.Time) error {
	return l.conn.SetReadDeadline(t)
}

func (l *Listener) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return l.conn.Close()
}
