// Package httpx holds the shared outbound HTTP client and retry helper.
package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// NewClient returns a client with bounded dial and TLS handshake times.
func NewClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Permanent wraps an error that Retry must not retry.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Backoff returns the wait before attempt i (0-based, i >= 1): initial doubled
// i-1 times, capped at max.
func Backoff(i int, initial, max time.Duration) time.Duration {
	d := initial
	for n := 1; n < i; n++ {
		if d >= max {
			break
		}
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// Retry calls fn up to attempts times with exponential backoff between calls.
// It stops early on success, on a *Permanent error, or when ctx is done.
func Retry(ctx context.Context, attempts int, initial, max time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(Backoff(i, initial, max)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
	}
	return err
}
