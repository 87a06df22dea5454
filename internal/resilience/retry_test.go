package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"corpora/apps/ingest/internal/resilience"
)

func fastPolicy(attempts int) resilience.Policy {
	return resilience.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestPolicy_RetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &resilience.HTTPError{Status: 503, URL: "http://example.com"}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_NonTransientPropagatesImmediately(t *testing.T) {
	calls := 0
	wantErr := &resilience.HTTPError{Status: 404, URL: "http://example.com"}

	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestPolicy_ValidationErrorNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return errors.New("missing source")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return &resilience.HTTPError{Status: 429, URL: "http://example.com"}
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastPolicy(3).Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, resilience.IsTransient(&resilience.HTTPError{Status: 429}))
	assert.True(t, resilience.IsTransient(&resilience.HTTPError{Status: 502}))
	assert.True(t, resilience.IsTransient(&resilience.Transient{Err: errors.New("wrapped")}))
	assert.False(t, resilience.IsTransient(&resilience.HTTPError{Status: 400}))
	assert.False(t, resilience.IsTransient(errors.New("validation: bad config")))
	assert.False(t, resilience.IsTransient(nil))
}
