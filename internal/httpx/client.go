// SPDX-License-Identifier: MIT

// Package httpx wraps the shared HTTP client used for every network fetch in a
// run: playlists, key material and media segments. The client carries a fixed
// default header set plus caller-supplied custom headers and a 30 second
// request timeout.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xglog "github.com/hlsgrab/hlsgrab/internal/log"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	requestTimeout   = 30 * time.Second
)

// StatusError reports a non-success HTTP response status.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s for %s", e.Status, e.URL)
}

// Client is safe for concurrent use by any number of in-flight fetches.
type Client struct {
	http   *http.Client
	header http.Header
}

// New builds a Client with the default header set layered with the given
// custom "Name: Value" entries. Malformed entries are skipped, not fatal.
func New(customHeaders []string) *Client {
	return &Client{
		http:   &http.Client{Timeout: requestTimeout},
		header: ParseHeaders(customHeaders),
	}
}

// ParseHeaders converts "Name: Value" strings into an http.Header. Entries
// without a colon are ignored with a warning.
func ParseHeaders(entries []string) http.Header {
	logger := xglog.WithComponent("httpx")
	h := http.Header{}
	h.Set("User-Agent", defaultUserAgent)
	for _, entry := range entries {
		name, value, found := strings.Cut(entry, ":")
		if !found {
			logger.Warn().Str("header", entry).Msg("ignoring malformed header")
			continue
		}
		h.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h
}

// Get fetches u and returns the full response body together with the final
// request URL after redirects. Non-2xx responses yield a *StatusError.
func (c *Client) Get(ctx context.Context, u *url.URL) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	for name, values := range c.header {
		req.Header[name] = values
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, finalURL, &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: u.String()}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, finalURL, err
	}
	return body, finalURL, nil
}
