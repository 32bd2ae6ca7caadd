// Package client provides the HTTP resource client for the docs REST API:
// get/post/put against named resource paths, structured API errors,
// retries for reads, session auth and a config value cache.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/metrics"
	"github.com/docsweb/docs-client/pkg/protocol"
	"github.com/docsweb/docs-client/pkg/retry"
)

// AuthCookie is the session cookie the backend authenticates with.
const AuthCookie = "auth_token"

// Client talks to the docs backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	authToken string

	configCache *lru.LRU[string, string]
}

// Config holds client configuration.
type Config struct {
	BaseURL     string // server root; the API lives under BaseURL + "/api/"
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string

	// ConfigCacheTTL enables caching of app/config values when > 0.
	ConfigCacheTTL  time.Duration
	ConfigCacheSize int

	// Transport overrides the underlying round tripper (tests, proxies).
	Transport http.RoundTripper
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: logging.NewTransport(base),
		},
		retryConfig: cfg.RetryConfig,
		authToken:   cfg.AuthToken,
	}

	if cfg.ConfigCacheTTL > 0 {
		size := cfg.ConfigCacheSize
		if size <= 0 {
			size = 32
		}
		c.configCache = lru.NewLRU[string, string](size, nil, cfg.ConfigCacheTTL)
	}

	return c
}

// BaseURL returns the server root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetAuthToken sets the session token sent with every request.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current session token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

func (c *Client) applyAuth(req *http.Request) {
	if token := c.AuthToken(); token != "" {
		req.AddCookie(&http.Cookie{Name: AuthCookie, Value: token})
	}
}

// APIError is a structured error returned by the backend.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Type != "" && e.Message != "":
		return fmt.Sprintf("%s: %s (%d)", e.Type, e.Message, e.Status)
	case e.Message != "":
		return fmt.Sprintf("%s (%d)", e.Message, e.Status)
	default:
		return fmt.Sprintf("server returned %d", e.Status)
	}
}

// AsAPIError checks if an error is an APIError and returns it.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// MessageOr returns the backend message carried by err, or fallback when
// err is not an APIError or has no message.
func MessageOr(err error, fallback string) string {
	if ae, ok := AsAPIError(err); ok && ae.Message != "" {
		return ae.Message
	}
	return fallback
}

// URL builds the absolute URL of an API resource without calling it.
func (c *Client) URL(path string, params url.Values) string {
	u := c.baseURL + "/api/" + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get fetches path with query params and decodes the JSON body into out.
// Network failures and 5xx responses are retried.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		err := c.do(ctx, http.MethodGet, path, params, nil, out)
		var ae *APIError
		if errors.As(err, &ae) && ae.Status < 500 {
			return err
		}
		return retry.Retryable(err)
	})
}

// Post sends form to path and decodes the JSON body into out. Not retried.
func (c *Client) Post(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, form, out)
}

// Put sends form to path and decodes the JSON body into out. Not retried.
func (c *Client) Put(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, form, out)
}

func (c *Client) do(ctx context.Context, method, path string, params, form url.Values, out any) error {
	start := time.Now()
	resource := resourceLabel(path)

	resp, err := c.send(ctx, method, path, params, form)
	if err != nil {
		metrics.RecordAPIRequest(method, resource, "network_error", time.Since(start))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordAPIRequest(method, resource, "api_error", time.Since(start))
		return decodeAPIError(resp)
	}

	metrics.RecordAPIRequest(method, resource, "ok", time.Since(start))
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, params, form url.Values) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, params), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	c.applyAuth(req)

	return c.httpClient.Do(req)
}

func decodeAPIError(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode}
	var er protocol.ErrorResponse
	if json.NewDecoder(resp.Body).Decode(&er) == nil {
		ae.Type = er.Type
		ae.Message = er.Message
	}
	return ae
}

// ConfigValue returns an app/config value. Values are served from the
// cache when enabled.
func (c *Client) ConfigValue(ctx context.Context, key string) (string, error) {
	if c.configCache != nil {
		if v, ok := c.configCache.Get(key); ok {
			metrics.RecordConfigCache(true)
			return v, nil
		}
		metrics.RecordConfigCache(false)
	}

	var resp protocol.ConfigResponse
	if err := c.Get(ctx, protocol.PathConfig, url.Values{"key": {key}}, &resp); err != nil {
		return "", err
	}

	if c.configCache != nil {
		c.configCache.Add(key, resp.Value)
	}
	return resp.Value, nil
}

// Download is a streamed binary response.
type Download struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	FileName    string
	ContentType string
}

// Download streams a URL previously built with URL. The caller must close
// Body.
func (c *Client) Download(ctx context.Context, rawURL string) (*Download, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	resource := "download"
	if u, perr := url.Parse(rawURL); perr == nil {
		if i := strings.Index(u.Path, "/api/"); i >= 0 {
			resource = resourceLabel(u.Path[i+len("/api/"):])
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(http.MethodGet, resource, "network_error", time.Since(start))
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		metrics.RecordAPIRequest(http.MethodGet, resource, "api_error", time.Since(start))
		return nil, decodeAPIError(resp)
	}
	metrics.RecordAPIRequest(http.MethodGet, resource, "ok", time.Since(start))

	d := &Download{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			d.FileName = params["filename"]
		}
	}
	return d, nil
}

var resourceWords = map[string]bool{
	"user": true, "registration": true, "login": true, "logout": true,
	"app": true, "config": true, "file": true, "list": true, "versions": true,
	"data": true, "translate": true, "languages": true, "start": true,
	"status": true, "download": true, "approve": true, "reject": true,
}

// resourceLabel replaces identifiers in a resource path so it can be used
// as a metric label.
func resourceLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if !resourceWords[p] {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
