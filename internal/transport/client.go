// Package transport sends authenticated JSON requests to the rental backend.
//
// Credentials travel as cookies. When a request is rejected with 401 the
// client performs at most one refresh at a time, shares its outcome with every
// request that was rejected meanwhile, and retries each of them once.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"rentdesk.org/internal/ids"
	"rentdesk.org/internal/obs"
)

// RefreshPath is the endpoint that exchanges the refresh cookie for a new access cookie.
const RefreshPath = "/account/jwt/refresh/"

// SessionObserver is told about the outcome of every token refresh.
type SessionObserver interface {
	MarkAuthenticated()
	Logout()
}

// Request describes one API call. Path is relative to {base}/api.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
	// NoReauth disables the refresh protocol for this request. Set on the
	// endpoints that establish or drop the session themselves.
	NoReauth bool
}

// Client is safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	observer SessionObserver
	limiter  *rate.Limiter
	logger   *slog.Logger
	timeout  *time.Duration

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient bases the underlying http.Client on a copy of hc, so hc itself
// is never modified. A jar is added when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.http = &cp
		}
	}
}

// WithSessionObserver registers the receiver of refresh outcomes.
func WithSessionObserver(o SessionObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithRateLimit throttles outgoing requests with a token bucket. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout sets a per-request timeout. Zero means none. It wins over the
// timeout of a client passed to WithHTTPClient, whatever the option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = &d }
}

// WithLogger overrides the logger; defaults to obs.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a client for the backend at baseURL (e.g. http://localhost:8000).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	u.Path += "/api"

	c := &Client{
		base:   u,
		http:   &http.Client{},
		logger: obs.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout != nil {
		c.http.Timeout = *c.timeout
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the API root ({base}/api).
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Jar exposes the cookie store holding the session.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// SetSessionObserver replaces the refresh observer after construction.
func (c *Client) SetSessionObserver(o SessionObserver) { c.observer = o }

// Cookie returns the decoded value of a session cookie for the API origin.
func (c *Client) Cookie(name string) (string, bool) {
	return CookieValue(c.http.Jar, c.base, name)
}

// Do executes req and decodes the JSON response into out (which may be nil).
// A 401 triggers the refresh protocol unless req.NoReauth is set; the request
// is retried at most once.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := encodeBody(req.Body)
	if err != nil {
		return err
	}

	err = c.send(ctx, req, body, out)
	if err == nil || req.NoReauth || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if rerr := c.refresh(ctx); rerr != nil {
		if ctx.Err() != nil {
			return &Error{Method: req.Method, Path: req.Path, Err: ctx.Err()}
		}
		return err
	}
	return c.send(ctx, req, body, out)
}

// Refresh runs the refresh protocol directly, sharing any refresh already in flight.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		// Detached so one waiter giving up cannot fail the refresh for the others.
		rctx := context.WithoutCancel(ctx)
		err := c.send(rctx, Request{Method: http.MethodPost, Path: RefreshPath, NoReauth: true}, nil, nil)
		if err != nil {
			obs.RefreshOutcome("failure")
			c.logger.Warn("token refresh failed", "error", err)
			if c.observer != nil {
				c.observer.Logout()
			}
			return nil, err
		}
		obs.RefreshOutcome("success")
		c.logger.Debug("token refreshed")
		if c.observer != nil {
			c.observer.MarkAuthenticated()
		}
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) send(ctx context.Context, req Request, body []byte, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	fail := func(err error) error {
		return &Error{Method: method, Path: req.Path, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	u := c.resolve(req.Path)
	u.RawQuery = req.Query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fail(fmt.Errorf("create request: %w", err))
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token, ok := CookieValue(c.http.Jar, u, CSRFCookie); ok && token != "" {
		httpReq.Header.Set("X-CSRFToken", token)
	}
	requestID := ids.RequestID()
	httpReq.Header.Set("X-Request-ID", requestID)

	done := obs.RequestStarted(method, req.Path)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		done(0)
		c.logger.Debug("api request failed", "method", method, "path", req.Path, "request_id", requestID, "error", err)
		return fail(err)
	}
	defer resp.Body.Close()
	done(resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("api request", "method", method, "path", req.Path, "status", resp.StatusCode, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Method: method, Path: req.Path, Status: resp.StatusCode, Body: data}
		parseErrorBody(apiErr)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Method: method, Path: req.Path, Status: resp.StatusCode, Body: data, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) resolve(path string) *url.URL {
	u := *c.base
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = c.base.Path + path
	return &u
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

// Values builds query filters from key/value pairs, dropping pairs whose value is empty.
func Values(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if v := strings.TrimSpace(kv[i+1]); v != "" {
			q.Set(kv[i], v)
		}
	}
	return q
}
