// Package namegen fetches display names from the random-username service.
package namegen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codocs/pkg/apperror"
)

const DefaultURL = "https://usernameapiv1.vercel.app/api/random-usernames"

type Client struct {
	URL     string
	HTTP    *http.Client
	Timeout time.Duration
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{URL: url, HTTP: &http.Client{}, Timeout: timeout}
}

type response struct {
	Usernames []string `json:"usernames"`
}

// Generate returns the first non-blank name from the service. Every failure is
// reported as ErrUpstreamUnavailable.
func (c *Client) Generate(ctx context.Context) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", apperror.Upstream("build namegen request", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", apperror.Upstream("call namegen", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperror.Upstream("call namegen", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", apperror.Upstream("decode namegen response", err)
	}
	for _, name := range body.Usernames {
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
	}
	return "", apperror.Upstream("decode namegen response", fmt.Errorf("no usernames returned"))
}
