// Package httpfetch loads audio objects over HTTP for analysis.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/farcloser/primordium/fault"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ewilliams-labs/sessions/internal/core/ports"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 64 << 20
)

// ErrTooLarge is returned when a response body exceeds the size limit.
var ErrTooLarge = errors.New("httpfetch: response too large")

// Client is an HTTP client for audio objects.
type Client struct {
	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	baseBackoff time.Duration
	maxBytes    int64
	credentials *clientcredentials.Config
	log         zerolog.Logger
}

// compile-time interface assertion
var _ ports.AudioFetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry enables transport retries on network errors, 429 and 5xx.
// One attempt (the default) disables retrying.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithClientCredentials attaches OAuth2 bearer tokens obtained through the
// client-credentials grant, for object stores that do not serve public URLs.
func WithClientCredentials(cfg *clientcredentials.Config) Option {
	return func(c *Client) { c.credentials = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient constructs a new audio fetcher.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout:     defaultTimeout,
		maxAttempts: 1,
		baseBackoff: time.Duration(defaultBackoffMs) * time.Millisecond,
		maxBytes:    defaultMaxBytes,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.credentials != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		authed := c.credentials.Client(ctx)
		authed.Timeout = c.httpClient.Timeout
		c.httpClient = authed
	}
	c.log = c.log.With().Str("component", "httpfetch").Logger()
	return c
}

// Fetch downloads url and returns its body. Any non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	// #nosec G107 -- URL comes from the caller's own storage bucket
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: %w", err)
	}

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("httpfetch: %w: status %d", fault.ErrReadFailure, resp.StatusCode)
	}
	if resp.ContentLength > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, classify(err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, c.maxBytes)
	}

	c.log.Debug().Str("url", url).Int("bytes", len(body)).Msg("fetched")
	return body, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("httpfetch: %w: %w", fault.ErrTimeout, err)
	}
	return fmt.Errorf("httpfetch: %w: %w", fault.ErrReadFailure, err)
}
