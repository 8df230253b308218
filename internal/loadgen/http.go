package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/tally/internal/domain/model"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, header map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

// getJSON performs a GET and decodes a 200 response into v.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.Unmarshal(body, v)
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

type incrementResponse struct {
	UserID   string `json:"user_id"`
	Total    int    `json:"total"`
	Replayed bool   `json:"replayed"`
}

// postIncrement sends one increment with its idempotency key.
func (c *HTTPClient) postIncrement(ctx context.Context, inc Increment) (incrementResponse, error) {
	var out incrementResponse
	resp, err := c.do(ctx, http.MethodPost, "/increments/"+url.PathEscape(inc.UserID),
		map[string]string{"Idempotency-Key": inc.Key})
	if err != nil {
		return out, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return out, err
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("increment %s: status %d: %s", inc.UserID, resp.StatusCode, body)
	}
	return out, json.Unmarshal(body, &out)
}

// leaderboard fetches the JSON ranking for window.
func (c *HTTPClient) leaderboard(ctx context.Context, window model.Window) (model.Leaderboard, error) {
	var lb model.Leaderboard
	err := c.getJSON(ctx, "/ranking?format=json&window="+url.QueryEscape(window.String()), &lb)
	return lb, err
}

type auditReport struct {
	Consistent    bool `json:"consistent"`
	Discrepancies []struct {
		UserID string `json:"user_id"`
		Total  int    `json:"total"`
		Events int    `json:"events"`
	} `json:"discrepancies"`
}

// audit fetches the counter consistency report.
func (c *HTTPClient) audit(ctx context.Context) (auditReport, error) {
	var report auditReport
	err := c.getJSON(ctx, "/audit", &report)
	return report, err
}

// healthy reports whether /healthz answers 200.
func (c *HTTPClient) healthy(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	_, _ = readResponseBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}
