// Package transport sends outbound HTTP requests with a bounded retry budget
// and exponential backoff. It knows nothing about payloads.
package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalambet/reuse/internal/metrics"
)

const defaultBaseDelay = time.Second

// DoFunc performs one attempt. It is called once per attempt so that the
// request body can be rebuilt each time.
type DoFunc func(ctx context.Context) (*http.Response, error)

// Retrier runs a DoFunc up to maxRetries+1 times.
type Retrier struct {
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// New creates a Retrier that waits 1s, 2s, 4s, ... between attempts.
func New() *Retrier {
	return &Retrier{
		baseDelay: defaultBaseDelay,
		sleep:     sleepContext,
		logger:    slog.Default(),
	}
}

// NewWithSleeper creates a Retrier with a custom wait function (for testing).
func NewWithSleeper(sleep func(ctx context.Context, d time.Duration) error) *Retrier {
	r := New()
	r.sleep = sleep
	return r
}

// Send performs do with attempts numbered 0..maxRetries.
//
// A 4xx response is returned at once and never retried. A 2xx response, or
// any response on the final attempt, is returned as-is. Other statuses and
// network failures are retried after waiting baseDelay*2^attempt; a network
// failure on the final attempt is returned as the error. The caller owns the
// returned response body.
func (r *Retrier) Send(ctx context.Context, do DoFunc, maxRetries int) (*http.Response, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := do(ctx)
		if err != nil {
			metrics.TransportAttempts.WithLabelValues("network_error").Inc()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == maxRetries {
				return nil, err
			}
			lastErr = err
			r.logger.Warn("model request failed, retrying", "attempt", attempt+1, "error", err)
		} else {
			switch {
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				metrics.TransportAttempts.WithLabelValues("client_error").Inc()
				return resp, nil
			case isSuccess(resp.StatusCode):
				metrics.TransportAttempts.WithLabelValues("success").Inc()
				return resp, nil
			}
			metrics.TransportAttempts.WithLabelValues("server_error").Inc()
			if attempt == maxRetries {
				return resp, nil
			}
			drain(resp)
			r.logger.Warn("model request returned server error, retrying", "attempt", attempt+1, "status", resp.StatusCode)
		}

		delay := r.baseDelay * time.Duration(1<<attempt)
		metrics.TransportRetries.Inc()
		r.logger.Debug("waiting before retry", "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	// Unreachable: the final attempt always returns above.
	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return nil, lastErr
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
