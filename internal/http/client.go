package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int

	// Timeout for JSON calls. Downloads are bounded by their context only,
	// since a year of hourly data can take a long time to stream.
	// Default: 60s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retries of a JSON call.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 16,
		Timeout:             60 * time.Second,
		RetryAttempts:       5,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     30 * time.Second,
		UserAgent:           "cdsretriever",
	}
}

// Client is an HTTP client for archive API calls and file downloads.
type Client struct {
	api      *http.Client
	download *http.Client
	opts     Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // Content-Length must match the bytes we write
	}

	return &Client{
		api:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		download: &http.Client{Transport: transport},
		opts:     opts,
	}
}

// DoJSON sends in (if non-nil) as a JSON body and decodes the response into
// out (if non-nil). Connection failures, 5xx and 429 responses are retried;
// when retries are exhausted the error is a *TransientTransferError.
func (c *Client) DoJSON(ctx context.Context, method, url string, header http.Header, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		req, err := c.newRequest(ctx, method, url, header, body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.api.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if retryable(resp.StatusCode) {
			resp.Body.Close()
			lastErr = statusError(resp)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if len(detail) > 0 {
				return fmt.Errorf("%s %s: %w: %s", method, url, err, bytes.TrimSpace(detail))
			}
			return fmt.Errorf("%s %s: %w", method, url, err)
		}

		if out == nil {
			resp.Body.Close()
			return nil
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response of %s %s: %w", method, url, err)
		}
		return nil
	}

	return &TransientTransferError{
		Op:  method,
		URL: url,
		Err: fmt.Errorf("failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr),
	}
}

// Download streams url into w and returns the number of bytes written. It
// makes a single attempt: connection errors, server errors and bodies shorter
// than the announced Content-Length are returned as *TransientTransferError
// so the caller can restart the whole transfer.
func (c *Client) Download(ctx context.Context, url string, header http.Header, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, header, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.download.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &TransientTransferError{Op: "download", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if retryable(resp.StatusCode) {
		return 0, &TransientTransferError{Op: "download", URL: url, Err: statusError(resp)}
	}
	if err := checkStatusCode(resp.StatusCode); err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, &TransientTransferError{Op: "download", URL: url, Err: err}
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, &TransientTransferError{
			Op:  "download",
			URL: url,
			Err: fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, n, resp.ContentLength),
		}
	}
	return n, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return req, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrTooManyRequests, resp.Status)
	}
	return fmt.Errorf("%w: %s", ErrServerError, resp.Status)
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
