// Package bootstrap fetches the full application-data snapshot over REST.
// The snapshot is the baseline the live event stream overlays; without it the
// dashboard has nothing to show, so fetch errors propagate to the caller
// instead of being swallowed.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skandyx/evscallpro-live/internal/types"
)

// Client fetches bootstrap snapshots from the backend REST API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new bootstrap client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves the full application-data snapshot
func (c *Client) Fetch(ctx context.Context) (*types.Bootstrap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/bootstrap", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bootstrap fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var boot types.Bootstrap
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		return nil, fmt.Errorf("failed to decode bootstrap: %w", err)
	}

	return &boot, nil
}
