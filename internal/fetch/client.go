package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/park285/goban-server/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var (
	ErrInvalidURL  = errors.New("only http and https urls can be fetched")
	ErrTooLarge    = errors.New("remote document too large")
	ErrTooManyHops = errors.New("too many redirects")
)

const (
	DefaultMaxBytes  = 1 << 20
	maxRedirects     = 5
	defaultUserAgent = "goban-server/1.0"
)

// StatusError is a non-2xx answer that was not retried away.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote status=%d body=%s", e.Code, e.Body)
}

type Client struct {
	http     *fasthttp.Client
	timeout  time.Duration
	retryMax int
	maxBytes int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithMaxBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
			c.http.MaxResponseBodySize = n
		}
	}
}

// WithDial replaces the dialer; tests use it with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &fasthttp.Client{
			Name:                "goban-server",
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxConnsPerHost:     16,
			MaxResponseBodySize: DefaultMaxBytes,
		},
		timeout:  10 * time.Second,
		retryMax: 3,
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get downloads a text document. 5xx answers and transport errors are retried
// with backoff; redirects are followed only to http or https targets.
func (c *Client) Get(ctx context.Context, rawURL string) (string, error) {
	target, err := checkURL(rawURL)
	if err != nil {
		return "", err
	}
	for hop := 0; hop <= maxRedirects; hop++ {
		body, next, err := c.getOnce(ctx, target)
		if err != nil {
			return "", err
		}
		if next == nil {
			return body, nil
		}
		target = next
	}
	return "", ErrTooManyHops
}

func (c *Client) getOnce(ctx context.Context, target *url.URL) (string, *url.URL, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(target.String())
	req.Header.SetUserAgent(defaultUserAgent)
	req.Header.Set("Accept", "application/x-go-sgf, text/plain, */*")

	attempts := max(c.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		err := c.http.DoDeadline(req, resp, c.deadline(ctx))
		if errors.Is(err, fasthttp.ErrBodyTooLarge) {
			return "", nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, c.maxBytes)
		}
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			status := resp.StatusCode()
			switch {
			case status >= 200 && status < 300:
				if len(resp.Body()) > c.maxBytes {
					return "", nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, c.maxBytes)
				}
				return string(resp.Body()), nil, nil
			case fasthttp.StatusCodeIsRedirect(status):
				next, err := resolveRedirect(target, string(resp.Header.Peek(fasthttp.HeaderLocation)))
				return "", next, err
			case !shouldRetryStatus(status):
				return "", nil, &StatusError{Code: status, Body: truncate(string(resp.Body()), 256)}
			}
			lastErr = &StatusError{Code: status, Body: truncate(string(resp.Body()), 256)}
		}
		if attempt == attempts {
			break
		}
		obslog.L().Debug("remote_fetch_retry",
			zap.String("url", target.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return "", nil, lastErr
		}
	}
	return "", nil, lastErr
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func checkURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

func resolveRedirect(from *url.URL, location string) (*url.URL, error) {
	if strings.TrimSpace(location) == "" {
		return nil, &StatusError{Code: fasthttp.StatusFound, Body: "redirect without location"}
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return checkURL(from.ResolveReference(ref).String())
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
