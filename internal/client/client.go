// Package client talks to the activitychat HTTP API on behalf of one signed-in
// user. It is the thread source and session source of a threads.Reconciler.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"activitychat/internal/domain"
	"activitychat/internal/threads"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

type apiErrorPayload struct {
	Error string `json:"error"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.RWMutex
	session threads.Session
}

var (
	_ threads.Source        = (*Client)(nil)
	_ threads.SessionSource = (*Client)(nil)
)

// NewClient returns a signed-out client for the server at baseURL.
func NewClient(baseURL string) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

// NormalizeBaseURL trims a trailing slash and requires an http(s) scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("server url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("server url must start with http:// or https://")
	}
	return strings.TrimRight(value, "/"), nil
}

// RealtimeURL is the websocket address of the server's realtime endpoint.
func (c *Client) RealtimeURL() string {
	return "ws" + strings.TrimPrefix(c.baseURL, "http") + "/realtime"
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	User        *domain.User `json:"user"`
}

// Login signs in and keeps the session.
func (c *Client) Login(ctx context.Context, email, password string) (threads.Session, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return threads.Session{}, err
	}
	if resp.User == nil || resp.AccessToken == "" {
		return threads.Session{}, fmt.Errorf("login: incomplete response")
	}

	sess := threads.Session{UserID: resp.User.ID, AccessToken: resp.AccessToken}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return sess, nil
}

// Logout forgets the session.
func (c *Client) Logout() {
	c.mu.Lock()
	c.session = threads.Session{}
	c.mu.Unlock()
}

// CurrentSession returns the signed-in session, or threads.ErrNoSession.
func (c *Client) CurrentSession(context.Context) (threads.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session.AccessToken == "" {
		return threads.Session{}, threads.ErrNoSession
	}
	return c.session, nil
}

// expireOnUnauthorized drops the session when the server rejected its token.
// A session from a newer Login is kept.
func (c *Client) expireOnUnauthorized(token string, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.AccessToken == token {
		c.session = threads.Session{}
	}
}

// Me returns the signed-in user as the server sees it.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", sess.AccessToken, nil, &u); err != nil {
		c.expireOnUnauthorized(sess.AccessToken, err)
		return nil, err
	}
	return &u, nil
}

// FetchThreads returns userID's thread records. userID must be the signed-in
// user.
func (c *Client) FetchThreads(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	sess, err := c.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("fetch threads for %s: signed in as %s", userID, sess.UserID)
	}

	var rows []domain.ThreadRow
	if err := c.doJSON(ctx, http.MethodGet, "/api/threads", sess.AccessToken, nil, &rows); err != nil {
		c.expireOnUnauthorized(sess.AccessToken, err)
		return nil, err
	}
	recs := make([]domain.ThreadRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.Normalize())
	}
	return recs, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, reqBody any, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload apiErrorPayload
		if err := json.Unmarshal(respData, &payload); err == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return apiErr
	}

	if respBody == nil || len(respData) == 0 {
		return nil
	}
	return json.Unmarshal(respData, respBody)
}
