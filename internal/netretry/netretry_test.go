package netretry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy(retries int) Policy {
	return Policy{Retries: retries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestPolicy_Do(t *testing.T) {
	transient := errors.New("connection reset")
	fatal := errors.New("not found")

	tests := []struct {
		name      string
		retries   int
		failures  int
		failWith  func() error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", retries: 2, failures: 0, wantCalls: 1},
		{name: "recovers", retries: 2, failures: 2, failWith: func() error { return transient }, wantCalls: 3},
		{name: "exhausted", retries: 2, failures: 5, failWith: func() error { return transient }, wantCalls: 3, wantErr: transient},
		{name: "no retries", retries: 0, failures: 5, failWith: func() error { return transient }, wantCalls: 1, wantErr: transient},
		{name: "permanent stops", retries: 2, failures: 5, failWith: func() error { return Permanent(fatal) }, wantCalls: 1, wantErr: fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			calls := 0
			op := func() error {
				calls++
				if calls <= tt.failures {
					return tt.failWith()
				}
				return nil
			}

			// Act
			err := fastPolicy(tt.retries).Do(context.Background(), op)

			// Assert
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPolicy_OnRetry(t *testing.T) {
	var seen []error
	p := fastPolicy(3)
	p.OnRetry = func(err error, _ time.Duration) { seen = append(seen, err) }

	calls := 0
	_ = p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	assert.Len(t, seen, 2)
}

func TestPolicy_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fastPolicy(5).Do(ctx, func() error {
		calls++
		return errors.New("flaky")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestNewPolicy(t *testing.T) {
	assert.Equal(t, 0, NewPolicy(-3).Retries)
	assert.Equal(t, DefaultRetries, NewPolicy(DefaultRetries).Retries)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(http.StatusTooManyRequests))
	assert.True(t, Retryable(http.StatusBadGateway))
	assert.False(t, Retryable(http.StatusNotFound))
	assert.False(t, Retryable(http.StatusOK))
}
