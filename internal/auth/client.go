// Package auth talks to the account backend: sign-in, registration, token
// validation, avatar upload. Token issuance and verification stay on the
// server; this client only carries tokens and can pre-check their expiry
// locally so callers skip requests that are guaranteed to fail.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultRequestTimeout bounds every account request.
const DefaultRequestTimeout = 30 * time.Second

// maxErrorBody limits how much of a failed response body is quoted in errors.
const maxErrorBody = 4 << 10

// Account is the profile the backend returns on login and validation.
type Account struct {
	ID       *string `json:"id"`
	Username string  `json:"username"`
	Nickname *string `json:"nickname"`
	Avatar   *string `json:"avatar"`
	Token    string  `json:"token"`
}

// Client issues account requests against one backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the account backend at baseURL
// (e.g. "http://localhost:8080"). A zero timeout uses DefaultRequestTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login authenticates with username and password, returning the profile with
// its session token. A non-2xx response surfaces the backend's message.
func (c *Client) Login(ctx context.Context, username, password string) (*Account, error) {
	body := map[string]string{"username": username, "password": password}

	var account Account
	if err := c.postJSON(ctx, "/api/auth/login", "", body, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Register creates a new account. The backend repeats its own password
// confirmation check, so both values are sent.
func (c *Client) Register(ctx context.Context, email, password, confirmPassword string) error {
	body := map[string]string{
		"email":           email,
		"password":        password,
		"confirmPassword": confirmPassword,
	}
	return c.postJSON(ctx, "/api/auth/register", "", body, nil)
}

// Validate checks the token against the backend and returns the fresh
// profile. An invalid or expired token comes back as an error.
func (c *Client) Validate(ctx context.Context, token string) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/validate", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseError(resp)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &account, nil
}

// UpdateAvatar uploads the avatar as a data URL to the account backend.
func (c *Client) UpdateAvatar(ctx context.Context, token, avatarData string) error {
	body := map[string]string{"avatar": avatarData}
	return c.postJSON(ctx, "/api/auth/update-avatar", token, body, nil)
}

// postJSON sends a JSON POST, optionally bearer-authenticated, decoding a
// JSON response into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// responseError turns a failed response into an error carrying the backend's
// message text.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, msg)
}
