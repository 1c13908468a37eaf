// Package substack is a thin authenticated client for the newsletter
// platform's draft API.
//
// Every operation reports the HTTP status as data. The returned error is
// reserved for transport failures (DNS, TLS, context cancellation, bad JSON
// from a 2xx response); callers decide what a non-2xx status means.
package substack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/starford/herald/internal/apperr"
)

// PublicationPlaceholder is replaced by the publication subdomain per call.
const PublicationPlaceholder = "{publication}"

// DefaultBaseURL is the API root.
const DefaultBaseURL = "https://" + PublicationPlaceholder + ".substack.com/api/v1"

const (
	sessionCookie   = "substack.sid"
	maxResponseSize = 16 << 20
	defaultTimeout  = 30 * time.Second
)

// Client talks to one base URL with one session credential.
// It is safe for concurrent use.
type Client struct {
	cookie  string
	baseURL string
	http    *http.Client
	log     *slog.Logger

	sections *expirable.LRU[string, []Section]
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root template.
func WithBaseURL(tmpl string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(tmpl, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithSectionCache keeps successful section listings per publication for ttl.
func WithSectionCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		if size > 0 && ttl > 0 {
			c.sections = expirable.NewLRU[string, []Section](size, nil, ttl)
		}
	}
}

// NewClient builds a client for credential, which is normalized once.
func NewClient(credential string, opts ...Option) *Client {
	c := &Client{
		cookie:  NormalizeCookie(credential),
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	return c
}

// NewClientFromProvider obtains a credential from p and builds a client with it.
func NewClientFromProvider(ctx context.Context, p AuthProvider, opts ...Option) (*Client, error) {
	cred, err := p.ObtainCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain credential: %w", err)
	}
	return NewClient(cred, opts...), nil
}

// NormalizeCookie turns a bare session value into a Cookie header value.
// Values that already carry a name=value pair are kept as they are.
func NormalizeCookie(credential string) string {
	v := strings.TrimSpace(credential)
	if v == "" || strings.Contains(v, "=") {
		return v
	}
	return sessionCookie + "=" + v
}


// Response carries the status of a remote call.
type Response struct {
	Status int
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Err returns nil for a 2xx status and an *apperr.StatusError otherwise.
func (r Response) Err(op string) error {
	if r.OK() {
		return nil
	}
	return &apperr.StatusError{Op: op, Status: r.Status}
}

func (c *Client) endpoint(publication, path string) string {
	return strings.ReplaceAll(c.baseURL, PublicationPlaceholder, publication) + path
}

// do sends one request and returns the status and the raw body.
func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) (Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Response{}, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("remote request failed",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return Response{}, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Response{Status: resp.StatusCode}, nil, fmt.Errorf("read response: %w", err)
	}

	r := Response{Status: resp.StatusCode}
	attrs := []any{
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	}
	if r.OK() {
		c.log.Debug("remote request", attrs...)
	} else {
		c.log.Warn("remote request rejected", attrs...)
	}
	return r, data, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any) (Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Response{}, nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, method, url, "application/json", body)
}

// decode unmarshals a 2xx body into v. Non-2xx bodies are ignored.
func decode(resp Response, data []byte, v any) error {
	if !resp.OK() || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
