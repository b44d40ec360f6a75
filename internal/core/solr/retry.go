package solr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 100 * time.Millisecond
)

// RetryConfig configures retries of failed Solr requests.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// selects the default, a negative value disables retries.
	MaxRetries int
	// InitialDelay is the first backoff; each retry doubles it.
	InitialDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   defaultMaxRetries,
		InitialDelay: defaultInitialDelay,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	retries := c.MaxRetries

	switch {
	case retries == 0:
		retries = defaultMaxRetries
	case retries < 0:
		retries = 0
	}

	delay := c.InitialDelay
	if delay <= 0 {
		delay = defaultInitialDelay
	}

	return retry.WithMaxRetries(uint64(retries), retry.NewExponential(delay))
}

// withRetry runs op until it succeeds, fails with a non-retryable error, or
// the backoff is exhausted. Only ErrServerError is retried.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	err := retry.Do(ctx, cfg.backoff(), func(context.Context) error {
		err := op()
		if isRetryableError(err) {
			return retry.RetryableError(err)
		}

		return err
	})

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return fmt.Errorf("retry interrupted: %w", err)
	}

	return err
}

func isRetryableError(err error) bool {
	return errors.Is(err, ErrServerError)
}
