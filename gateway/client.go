// Package gateway translates storefront operations into calls against the backend REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-Id"

	defaultTokenCookie = "token"
	defaultTimeout     = 15 * time.Second
	maxErrorBody       = 64 << 10
)

// Client talks to the backend. Every request carries the session cookies and, when the
// token cookie is present, the same token as a bearer Authorization header.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	tokenCookie string
	timeout     time.Duration
	logger      *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client. A cookie jar is attached when it has none.
// Its Timeout is overridden by WithTimeout regardless of option order.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		if cp.Jar == nil {
			cp.Jar = c.httpClient.Jar
		}
		c.httpClient = &cp
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTokenCookie sets the cookie whose value is mirrored into the Authorization header.
func WithTokenCookie(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.tokenCookie = name
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:     u,
		httpClient:  &http.Client{Jar: jar},
		tokenCookie: defaultTokenCookie,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.timeout > 0:
		c.httpClient.Timeout = c.timeout
	case c.httpClient.Timeout == 0:
		c.httpClient.Timeout = defaultTimeout
	}

	return c, nil
}

// SetToken stores the session token cookie for the backend host.
func (c *Client) SetToken(token string) {
	c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:  c.tokenCookie,
		Value: token,
		Path:  "/",
	}})
}

// ClearToken expires the session token cookie.
func (c *Client) ClearToken() {
	c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:   c.tokenCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}

func (c *Client) token() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == c.tokenCookie {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("req_id", reqID),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("req_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("since", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, method, path)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}

	return nil
}

func decodeError(resp *http.Response, method, path string) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}

	return apiErr
}
