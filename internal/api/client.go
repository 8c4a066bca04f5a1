// file: internal/api/client.go
// version: 1.0.0
// guid: 25ac2f12-7116-470e-a889-31a6ddae8aff

// Package api is the thin sync-server client used by download tasks and the
// file-browser bridge. Only the calls those two paths need are implemented.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jdfalk/filesync/internal/account"
)

// DefaultTimeout bounds API calls that return small JSON bodies. File bodies
// are streamed and only bounded by the request context.
const DefaultTimeout = 30 * time.Second

// Client talks to the sync server on behalf of an account.
type Client struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

// NewClient constructs a client. A zero timeout selects DefaultTimeout.
func NewClient(userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{},
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// WithHTTPClient swaps the underlying transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) newRequest(ctx context.Context, acct account.Account, method, relative string, body io.Reader) (*http.Request, error) {
	if !acct.IsValid() {
		return nil, account.ErrInvalid
	}
	u, err := acct.AbsoluteURL(relative)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+acct.Token)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: request failed: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newError(resp)
	}
	return resp, nil
}

// FileDownloadLink asks the server for a one-shot download URL for path
// inside repoID.
func (c *Client) FileDownloadLink(ctx context.Context, acct account.Account, repoID, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{"p": {path}, "reuse": {"1"}}
	req, err := c.newRequest(ctx, acct, http.MethodGet,
		fmt.Sprintf("/api2/repos/%s/file/?%s", url.PathEscape(repoID), q.Encode()), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var link string
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return "", fmt.Errorf("failed to parse download link: %w", err)
	}
	if link == "" {
		return "", fmt.Errorf("server returned an empty download link for %s:%s", repoID, path)
	}
	return link, nil
}

// SharedLink creates (or reuses) a public share link for path inside repoID.
func (c *Client) SharedLink(ctx context.Context, acct account.Account, repoID, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{"p": {path}}
	req, err := c.newRequest(ctx, acct, http.MethodPut,
		fmt.Sprintf("/api2/repos/%s/file/shared-link/", url.PathEscape(repoID)),
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	link := resp.Header.Get("Location")
	if link == "" {
		return "", fmt.Errorf("server did not return a share link for %s:%s", repoID, path)
	}
	return link, nil
}

// OpenFile starts streaming a download link. The caller owns the returned body.
// size is -1 when the server does not announce a content length.
func (c *Client) OpenFile(ctx context.Context, link string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}
