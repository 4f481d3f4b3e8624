// Package permitapi is the field daemon's client for the issuing server's
// HTTP API: agent login with cached token refresh, and permit snapshot pulls
// for the device-side cache. Submissions of queued writes go through
// internal/offline's submitter, which borrows this client as its token
// source.
package permitapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"permis/internal/permit/store/snapshot"
	dErrors "permis/pkg/domain-errors"
)

const (
	// tokenExpiryMargin renews tokens slightly early so an in-flight request
	// never carries one that expires mid-request.
	tokenExpiryMargin = time.Minute

	maxErrorBody = 4096
)

// Client talks to one permis server on behalf of one agent account.
type Client struct {
	baseURL  string
	email    string
	password string
	client   *http.Client
	logger   *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New constructs a client for the server at baseURL, authenticating with the
// agent's credentials on demand.
func New(baseURL, email, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		email:    email,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a currently valid access token, logging in when none is
// cached or the cached one is about to expire. Safe for concurrent use.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

// invalidate drops the cached token so the next Token call logs in again.
// Called when the server answers 401 to a request the cache thought was
// covered, which happens when tokens are revoked server-side.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// login holds c.mu.
func (c *Client) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/agents/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var session struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if session.AccessToken == "" {
		return dErrors.New(dErrors.CodeInternal, "login response carried no access token")
	}

	c.token = session.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(session.ExpiresIn)*time.Second - tokenExpiryMargin)
	if c.logger != nil {
		c.logger.InfoContext(ctx, "agent session established", "email", c.email, "expires_in_s", session.ExpiresIn)
	}
	return nil
}

// PullSnapshot fetches the server's unexpired permit set for the local cache.
// since is the TakenAt of the snapshot already held; passing it lets the
// server answer 304, reported here as a false second return. The zero value
// pulls unconditionally.
func (c *Client) PullSnapshot(ctx context.Context, since time.Time) (*snapshot.Snapshot, bool, error) {
	snap, changed, err := c.pullSnapshot(ctx, since)
	if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		// Token revoked or expired server-side; one fresh login and retry.
		c.invalidate()
		snap, changed, err = c.pullSnapshot(ctx, since)
	}
	return snap, changed, err
}

func (c *Client) pullSnapshot(ctx context.Context, since time.Time) (*snapshot.Snapshot, bool, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, false, err
	}

	endpoint := c.baseURL + "/api/v1/permits/snapshot"
	if !since.IsZero() {
		endpoint += "?since=" + since.UTC().Format(time.RFC3339)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("pull snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return nil, false, nil
	default:
		return nil, false, apiError(resp)
	}

	var snap snapshot.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, true, nil
}

// apiError rebuilds a domain error from the server's error envelope so
// callers can branch on the server's own code.
func apiError(resp *http.Response) error {
	code := dErrors.CodeInternal
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		code = dErrors.CodeUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		code = dErrors.CodeForbidden
	case resp.StatusCode >= 500:
		code = dErrors.CodeUnavailable
	}
	message := fmt.Sprintf("server replied %s", resp.Status)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(body) > 0 {
		var envelope struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
			code = dErrors.Code(envelope.Error)
			if envelope.ErrorDescription != "" {
				message = envelope.ErrorDescription
			}
		}
	}
	return dErrors.New(code, message)
}
