// Package api is the client for the investigation management REST API.
//
// GET responses are cached per URL and tagged by resource; mutations
// invalidate the tags they affect. A 401 from any endpoint clears the stored
// credential, resets the cache and fires the unauthorized hook.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/clock"
)

// Sentinel errors.
var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrNotFound     = errors.New("api: not found")
)

// Error is a non-2xx response other than 401.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Is maps 404 responses to ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// TokenSource supplies and clears the bearer credential.
type TokenSource interface {
	Token() (string, bool)
	Clear() error
}

// Options configure a Client. Zero values select defaults.
type Options struct {
	HTTPClient     *http.Client
	Tokens         TokenSource
	Logger         *zap.Logger
	Clock          clock.Clock
	CacheTTL       time.Duration // DefaultCacheTTL if zero; negative disables
	OnUnauthorized func()
}

// Client talks to the API under baseURL/api/v1.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	cache      *Cache
	logger     *zap.Logger

	mu             sync.Mutex
	onUnauthorized func()

	Investigations *InvestigationService
	Tigers         *TigerService
	Facilities     *FacilityService
	Verification   *VerificationService
	Analytics      *AnalyticsService
	Integrations   *IntegrationService
}

// New returns a Client for the API at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	c := &Client{
		baseURL:        u,
		httpClient:     opts.HTTPClient,
		tokens:         opts.Tokens,
		cache:          NewCache(opts.Clock, ttl),
		logger:         opts.Logger,
		onUnauthorized: opts.OnUnauthorized,
	}
	c.Investigations = &InvestigationService{c: c}
	c.Tigers = &TigerService{c: c}
	c.Facilities = &FacilityService{c: c}
	c.Verification = &VerificationService{c: c}
	c.Analytics = &AnalyticsService{c: c}
	c.Integrations = &IntegrationService{c: c}
	return c, nil
}

// SetUnauthorizedHandler replaces the hook fired on a 401.
func (c *Client) SetUnauthorizedHandler(f func()) {
	c.mu.Lock()
	c.onUnauthorized = f
	c.mu.Unlock()
}

// Cache exposes the response cache.
func (c *Client) Cache() *Cache { return c.cache }

// HandleUnauthorized applies the 401 contract: clear the credential, reset
// cached data and notify the hook. It is exported for other transports
// (the live event socket) that see a 401 outside this client.
func (c *Client) HandleUnauthorized() {
	if c.tokens != nil {
		if err := c.tokens.Clear(); err != nil {
			c.logger.Warn("clear credential", zap.Error(err))
		}
	}
	c.cache.Reset()

	c.mu.Lock()
	f := c.onUnauthorized
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := c.baseURL.JoinPath("api", "v1", path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

// get fetches path into out, serving from and filling the cache.
func (c *Client) get(ctx context.Context, path string, query url.Values, tags []string, out any) error {
	u := c.endpoint(path, query)
	key := u.String()

	if body, ok := c.cache.Get(key); ok {
		return decode(body, out)
	}
	body, err := c.roundTrip(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if err := decode(body, out); err != nil {
		return err
	}
	c.cache.Put(key, body, tags...)
	return nil
}

// send performs a mutation and invalidates tags on success.
func (c *Client) send(ctx context.Context, method, path string, in, out any, invalidate ...string) error {
	body, err := c.roundTrip(ctx, method, c.endpoint(path, nil), in)
	if err != nil {
		return err
	}
	if n := c.cache.Invalidate(invalidate...); n > 0 {
		c.logger.Debug("cache invalidated", zap.Strings("tags", invalidate), zap.Int("entries", n))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return decode(body, out)
}

func (c *Client) roundTrip(ctx context.Context, method string, u *url.URL, in any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", u.Path),
		zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Warn("api rejected credential", zap.String("path", u.Path))
		c.HandleUnauthorized()
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &Error{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts a message from common error body shapes.
func errorMessage(body []byte) string {
	var shape struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &shape) == nil {
		for _, s := range []string{shape.Detail, shape.Message, shape.Error} {
			if s != "" {
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if s := strings.TrimSpace(o.Search); s != "" {
		v.Set("search", s)
	}
	if o.Status != "" {
		v.Set("status", o.Status)
	}
	return v
}

func join(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}
