package resilience_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"corpora/apps/ingest/internal/resilience"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := resilience.NewBreaker("provider-api", 3)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	// Open now: the operation must not run.
	calls := 0
	err := b.Do(func() error { calls++; return nil })
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, 0, calls)
}

func TestBreaker_ClosesOnSuccess(t *testing.T) {
	b := resilience.NewBreaker("provider-api", 2)
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	err := b.Do(func() error { return nil })
	assert.NoError(t, err)

	// Counter reset: a single new failure must not open the breaker.
	_ = b.Do(func() error { return boom })
	err = b.Do(func() error { return nil })
	assert.NoError(t, err)
}

func TestBreaker_ErrorNamesDependency(t *testing.T) {
	b := resilience.NewBreaker("docs-api", 1)
	_ = b.Do(func() error { return errors.New("boom") })

	err := b.Do(func() error { return nil })
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Contains(t, err.Error(), "docs-api")
}
