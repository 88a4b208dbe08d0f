package kintone

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiPrefix = "/k/v1/"

// Auth carries the credentials for a kintone domain. Either a
// username/password pair or an API token must be set; when both are
// present the password pair wins, matching the precedence of the
// official clients.
type Auth struct {
	Username string
	Password string
	APIToken string
}

func (a Auth) validate() error {
	if a.APIToken != "" {
		return nil
	}
	if a.Username == "" || a.Password == "" {
		return errors.New("kintone: either an API token or a username and password are required")
	}
	return nil
}

// Client is a typed HTTP client for the kintone REST API. All methods
// issue a single request and decode a single response; the client holds
// no mutable state and is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	auth       Auth
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the kintone domain at baseURL,
// e.g. "https://example.cybozu.com".
func NewClient(baseURL string, auth Auth, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("kintone: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("kintone: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("kintone: unsupported base URL scheme %q", u.Scheme)
	}
	if err := auth.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: u,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// endpoint builds the absolute URL for an API path like "records.json".
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + apiPrefix + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if c.auth.Username != "" && c.auth.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(c.auth.Username + ":" + c.auth.Password))
		req.Header.Set("X-Cybozu-Authorization", token)
		return
	}
	req.Header.Set("X-Cybozu-API-Token", c.auth.APIToken)
}

// do issues one API request. A non-nil body is JSON-encoded; a non-nil
// out receives the decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kintone: encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("kintone: creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kintone: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("kintone: decoding response from %s: %w", path, err)
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("kintone: decoding response: %w", err)
	}
	return nil
}

// raw issues a request and hands back the open response body. The caller
// owns closing it.
func (c *Client) raw(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("kintone: creating request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kintone: %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}
