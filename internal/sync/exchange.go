package sync

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

// DefaultExchangeTimeout bounds the single HTTP round trip of a sync cycle.
const DefaultExchangeTimeout = 30 * time.Second

// maxErrorBody limits how much of a failed response body is quoted in errors.
const maxErrorBody = 4 << 10

// ExchangeClient performs the single request/response round trip of a sync
// cycle. It neither reads nor writes the local store, and it never retries:
// retrying a failed cycle is the caller's decision.
type ExchangeClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewExchangeClient creates a client for the exchange endpoint at baseURL
// (e.g. "http://localhost:8080"). A zero timeout uses DefaultExchangeTimeout.
func NewExchangeClient(baseURL string, timeout time.Duration) *ExchangeClient {
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	return &ExchangeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Exchange POSTs the local bundle to the exchange endpoint and, unless
// pushOnly is set, decodes the remote bundle from the response.
//
// Exactly one request is attempted. A non-2xx status is returned as an error
// carrying the response body text. For push-only cycles the response body is
// ignored beyond the status check and the returned bundle is nil.
func (c *ExchangeClient) Exchange(ctx context.Context, token string, local *Bundle, pushOnly bool) (*Bundle, error) {
	payload, err := json.Marshal(local)
	if err != nil {
		return nil, serializationErr("exchange", fmt.Errorf("failed to encode bundle: %w", err))
	}

	url := c.baseURL + "/api/sync/exchange"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, networkErr("exchange", fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkErr("exchange", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, networkErr("exchange",
			fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	if pushOnly {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var remote Bundle
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, serializationErr("exchange", fmt.Errorf("failed to decode remote bundle: %w", err))
	}
	return &remote, nil
}
