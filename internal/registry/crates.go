// Package registry queries the crates.io metadata API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/k0nserv/cargo-edit-locally/internal/netretry"
)

const (
	// DefaultAPI is the crates.io API root.
	DefaultAPI = "https://crates.io/api/v1"
	// DefaultUserAgent identifies the tool to crates.io, which rejects
	// anonymous clients.
	DefaultUserAgent = "cargo-edit-locally (https://github.com/k0nserv/cargo-edit-locally)"
)

// StatusError is returned for any non-200 response.
type StatusError struct {
	Name string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching metadata for `%s`: failed to get 200, got %d", e.Name, e.Code)
}

// Crate is the subset of crate metadata the tool needs.
type Crate struct {
	Name       string `json:"name"`
	Repository string `json:"repository"`
	MaxVersion string `json:"max_version"`
}

type crateResponse struct {
	Crate Crate `json:"crate"`
}

// Client looks up crates on a registry API.
type Client struct {
	apiURL    string
	userAgent string
	client    *http.Client
	retry     netretry.Policy
}

// NewClient creates a client for apiURL. Empty arguments take the defaults.
func NewClient(apiURL, userAgent string, retry netretry.Policy) *Client {
	if apiURL == "" {
		apiURL = DefaultAPI
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		apiURL:    apiURL,
		userAgent: userAgent,
		client:    &http.Client{},
		retry:     retry,
	}
}

// Lookup fetches metadata for the named crate. Transport errors and
// transient statuses are retried; any other non-200 status is fatal.
func (c *Client) Lookup(ctx context.Context, name string) (*Crate, error) {
	apiURL := fmt.Sprintf("%s/crates/%s", c.apiURL, url.PathEscape(name))

	var crate *Crate
	err := c.retry.Do(ctx, func() error {
		var err error
		crate, err = c.lookupOnce(ctx, apiURL, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return crate, nil
}

func (c *Client) lookupOnce(ctx context.Context, apiURL, name string) (*Crate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, netretry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Name: name, Code: resp.StatusCode}
		if netretry.Retryable(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, netretry.Permanent(statusErr)
	}

	var result crateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, netretry.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	return &result.Crate, nil
}
