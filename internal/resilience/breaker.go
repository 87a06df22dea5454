package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without invoking the operation while the breaker
// is open. Callers can branch on it with errors.Is.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Breaker tracks consecutive failures for one named dependency. It opens
// after threshold consecutive failures and fails fast until the cooldown
// elapses; the next successful probe closes it and resets the counter.
// One instance should be shared by every call site that talks to the same
// dependency.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
}

func NewBreaker(name string, threshold int) *Breaker {
	return &Breaker{name: name, threshold: threshold, cooldown: 30 * time.Second}
}

func (b *Breaker) Do(op func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	// Open: let a single probe through once the cooldown has passed.
	if time.Since(b.openedAt) >= b.cooldown {
		b.openedAt = time.Now()
		return nil
	}
	return fmt.Errorf("%s: %w", b.name, ErrBreakerOpen)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		return
	}

	b.failures++
	if b.failures == b.threshold {
		b.openedAt = time.Now()
	}
}
