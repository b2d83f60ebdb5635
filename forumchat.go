// Package forumchat is the Go client for the forum's real-time chat.
//
// It keeps a persistent channel to the server, caches conversation history
// per peer, paginates older messages on demand, tracks typing presence and
// mirrors the server's unread counters.
//
// Example:
//
//	client := forumchat.NewClient(forumchat.WithBaseURL("http://localhost:8080"))
//	me, _ := client.Login(ctx, &forumchat.LoginOptions{Identifier: "alice", Password: "..."})
//
//	session, _ := client.NewSession(&forumchat.SessionConfig{User: me.Username, View: view})
//	_ = session.Start(ctx)
//	defer session.Logout()
//
//	_ = session.Open(ctx, "bob")
//	session.Input("bob", "hel")
//	_ = session.Send(ctx, "hello bob")
package forumchat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second

	// SessionCookieName is the cookie the server uses for authentication.
	SessionCookieName = "session_token"
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the forum's REST endpoints and builds realtime sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rest       *resty.Client
	logger     *slog.Logger

	mu           sync.RWMutex
	sessionToken string
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithSessionToken authenticates requests with an existing session cookie value.
func WithSessionToken(token string) ClientOption {
	return func(c *Client) { c.sessionToken = token }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new forum chat client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = loggerOrDefault(c.logger)
	c.rest = resty.NewWithClient(c.httpClient)
	return c
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SessionToken returns the current session cookie value.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

// SetSessionToken replaces the session cookie value.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.sessionToken = token
	c.mu.Unlock()
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string) (*resty.Response, error) {
	req := c.rest.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req.SetHeader("Content-Type", "application/json").SetBody(b)
	}
	if token := c.SessionToken(); token != "" {
		req.SetCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	}

	start := time.Now()
	resp, err := req.Execute(method, c.baseURL+path)
	if err != nil {
		c.logger.WarnContext(ctx, "request failed", "method", method, "path", path, "err", err)
		return nil, &FetchError{Method: method, Path: path, Err: err}
	}

	c.logger.DebugContext(ctx, "request",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"latency", time.Since(start),
	)

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return resp, &FetchError{Method: method, Path: path, StatusCode: resp.StatusCode()}
	}
	return resp, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Chat endpoints
// ============================================================================

// FetchMessages returns one page of the conversation between from and to,
// skipping the offset most recent messages. An empty page means there is no
// older history.
func (c *Client) FetchMessages(ctx context.Context, from, to string, offset int) ([]Message, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/messages", nil, map[string]string{
		"from":   from,
		"to":     to,
		"offset": strconv.Itoa(offset),
	})
	if err != nil {
		return nil, err
	}
	page, err := decodeJSON[[]Message](resp.Body())
	if err != nil {
		return nil, &FetchError{Method: http.MethodGet, Path: "/messages", Err: err}
	}
	if *page == nil {
		return []Message{}, nil
	}
	return *page, nil
}

// ReportNotification posts unread activity and returns the server's count.
func (c *Client) ReportNotification(ctx context.Context, req *NotificationRequest) (*NotificationResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/notification", req, nil)
	if err != nil {
		return nil, err
	}
	result, err := decodeJSON[NotificationResult](resp.Body())
	if err != nil {
		return nil, &FetchError{Method: http.MethodPost, Path: "/notification", Err: err}
	}
	return result, nil
}

// Logged checks that the session is still valid.
func (c *Client) Logged(ctx context.Context) (*LoggedResult, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/logged", nil, nil)
	if err != nil {
		return nil, err
	}
	result, err := decodeJSON[LoggedResult](resp.Body())
	if err != nil {
		return nil, &FetchError{Method: http.MethodGet, Path: "/logged", Err: err}
	}
	return result, nil
}

// Login authenticates and keeps the returned session cookie.
func (c *Client) Login(ctx context.Context, opts *LoginOptions) (*LoggedResult, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: login options required", ErrInvalidInput)
	}
	if err := validateStruct(opts); err != nil {
		return nil, err
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/login", opts, nil)
	if err != nil {
		return nil, err
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			c.SetSessionToken(cookie.Value)
		}
	}
	if c.SessionToken() == "" {
		return nil, &FetchError{Method: http.MethodPost, Path: "/login", Err: fmt.Errorf("no %s cookie in response", SessionCookieName)}
	}
	result, err := decodeJSON[LoggedResult](resp.Body())
	if err != nil {
		return nil, &FetchError{Method: http.MethodPost, Path: "/login", Err: err}
	}
	return result, nil
}

// Logout ends the server session and forgets the cookie.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/logout", nil, nil)
	c.SetSessionToken("")
	return err
}

// ============================================================================
// Realtime factory
// ============================================================================

// WSURL returns the channel endpoint derived from the base URL.
func (c *Client) WSURL() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws"
}

// Channel creates a channel bound to this client's endpoint and session
// cookie. Call Connect to open it.
func (c *Client) Channel(config *ChannelConfig) *Channel {
	cfg := ChannelConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.URL == "" {
		cfg.URL = c.WSURL()
	}
	if cfg.HTTPHeader == nil {
		cfg.HTTPHeader = http.Header{}
	} else {
		cfg.HTTPHeader = cfg.HTTPHeader.Clone()
	}
	if token := c.SessionToken(); token != "" {
		cfg.HTTPHeader.Set("Cookie", (&http.Cookie{Name: SessionCookieName, Value: token}).String())
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return NewChannel(&cfg)
}

// NewSession creates a chat session backed by this client and a new channel.
func (c *Client) NewSession(config *SessionConfig) (*Session, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: session config required", ErrInvalidInput)
	}
	var chCfg ChannelConfig
	if config.Channel != nil {
		chCfg = *config.Channel
	}
	if chCfg.Logger == nil {
		chCfg.Logger = config.Logger
	}
	return NewSession(c, c.Channel(&chCfg), config)
}
