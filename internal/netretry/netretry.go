// Package netretry retries network operations with bounded exponential backoff.
package netretry

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 2

	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
)

// Policy bounds how often and how slowly an operation is retried.
type Policy struct {
	Retries         int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// OnRetry, if set, is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// NewPolicy returns a policy with the default intervals.
func NewPolicy(retries int) Policy {
	if retries < 0 {
		retries = 0
	}
	return Policy{
		Retries:         retries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
	}
}

// Do runs op until it succeeds, returns a Permanent error, the retries are
// exhausted or ctx is done. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = backoff.Notify(p.OnRetry)
	}
	return backoff.RetryNotify(op, b, notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retryable reports whether an HTTP status is transient.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
