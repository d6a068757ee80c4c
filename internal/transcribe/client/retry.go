package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/TechnicallyShaun/nota-diary/internal/diary"
	"github.com/TechnicallyShaun/nota-diary/internal/logging"
)

// DefaultRetryCount is the default number of retry attempts.
const DefaultRetryCount = 3

// DefaultBaseDelay is the initial delay for exponential backoff.
const DefaultBaseDelay = 1 * time.Second

// RetryProvider wraps a Provider with retry logic and exponential backoff.
type RetryProvider struct {
	provider  Provider
	maxRetry  int
	baseDelay time.Duration
	logger    logging.Logger
}

// RetryOption configures the RetryProvider.
type RetryOption func(*RetryProvider)

// WithRetryCount sets the maximum number of retry attempts.
func WithRetryCount(n int) RetryOption {
	return func(r *RetryProvider) {
		r.maxRetry = n
	}
}

// WithBaseDelay sets the initial delay for exponential backoff.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(r *RetryProvider) {
		r.baseDelay = d
	}
}

// WithLogger sets the logger for retry attempts.
func WithLogger(l logging.Logger) RetryOption {
	return func(r *RetryProvider) {
		r.logger = l
	}
}

// NewRetryProvider wraps provider with retries.
func NewRetryProvider(provider Provider, opts ...RetryOption) *RetryProvider {
	r := &RetryProvider{
		provider:  provider,
		maxRetry:  DefaultRetryCount,
		baseDelay: DefaultBaseDelay,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Transcribe calls the wrapped provider, retrying on network errors, 429 and
// 5xx responses. Other errors are returned immediately.
func (r *RetryProvider) Transcribe(ctx context.Context, req Request) (*diary.Transcription, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseDelay
	b.MaxElapsedTime = 0

	var (
		result  *diary.Transcription
		attempt int
	)
	operation := func() error {
		attempt++
		t, err := r.provider.Transcribe(ctx, req)
		if err == nil {
			result = t
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		r.logger.Warn("retrying transcription",
			logging.Int("attempt", attempt),
			logging.Int("max_retries", r.maxRetry),
			logging.Duration("delay", delay),
			logging.String("error", err.Error()),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetry)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if attempt > 1 && isRetryable(err) {
			return nil, fmt.Errorf("transcription failed after %d retries: %w", attempt-1, err)
		}
		return nil, err
	}
	return result, nil
}

// isRetryable reports whether err should trigger another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
