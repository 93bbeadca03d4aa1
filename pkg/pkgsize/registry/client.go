// Package registry fetches package manifests, file listings and file
// contents from npm CDNs.
//
// Basic usage:
//
//	c, err := registry.New(registry.Unpkg, registry.WithConcurrency(16))
//	if err != nil {
//	    return err
//	}
//	desc, err := c.GetPackageInfo(ctx, "preact", "10.19.0")
//	files := c.DownloadFiles(ctx, desc)
//
// No request carries a timeout and nothing is retried. Callers bound a
// request through its context.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var logger = logging.Get("registry")

// DefaultConcurrency bounds parallel file fetches when no limit is configured.
const DefaultConcurrency = 16

// StatusError is a non-2xx registry response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the registry.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client talks to one provider.
type Client struct {
	provider    Provider
	http        *http.Client
	limiter     *rate.Limiter
	concurrency int
	userAgent   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBaseURL points the client at a different base, keeping the provider's
// listing capability. Used for mirrors and tests.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.provider.Base = base
	}
}

// WithConcurrency bounds parallel fetches. Zero or negative uses DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRateLimit caps requests per second. Zero disables the cap.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			burst := max(int(perSecond), 1)
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for the provider id.
func New(providerID string, opts ...Option) (*Client, error) {
	p, err := LookupProvider(providerID)
	if err != nil {
		return nil, err
	}

	c := &Client{
		provider:    p,
		concurrency: DefaultConcurrency,
		userAgent:   "pkgsize",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = c.concurrency
		c.http = &http.Client{Transport: transport}
	}

	return c, nil
}

// Provider returns the provider the client talks to.
func (c *Client) Provider() Provider {
	return c.provider
}

// Concurrency returns the fetch concurrency bound.
func (c *Client) Concurrency() int {
	return c.concurrency
}

// do issues one request. Transport failures wrap ErrRegistryUnreachable and
// non-2xx responses are returned as *StatusError with the body closed.
func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrRegistryUnreachable, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRegistryUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// fetch returns the body of a GET request.
func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", types.ErrRegistryUnreachable, url, err)
	}
	return string(body), nil
}

// FetchFile returns the content of one package file.
func (c *Client) FetchFile(ctx context.Context, name, version, path string) (string, error) {
	return c.fetch(ctx, c.provider.url(types.FormatSpec(name, version), path))
}
