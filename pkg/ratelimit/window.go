package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// DefaultRequestsPerMinute matches the free Alpha Vantage tier.
const DefaultRequestsPerMinute = 5

var ErrLimitExceeded = errors.New("rate limit exceeded")

// WindowInfo is a snapshot of the limiter state.
type WindowInfo struct {
	RequestsMade int
	Limit        int
	ResetAt      time.Time
}

// FixedWindowLimiter counts requests in a 60 second window that starts at
// the first request after the previous window expired. The window only rolls
// forward when Allow is called.
type FixedWindowLimiter struct {
	mu           sync.Mutex
	limit        int
	window       time.Duration
	requestsMade int
	windowStart  time.Time
	now          func() time.Time
}

type WindowOption func(*FixedWindowLimiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) WindowOption {
	return func(l *FixedWindowLimiter) {
		l.now = now
	}
}

func NewFixedWindowLimiter(requestsPerMinute int, opts ...WindowOption) *FixedWindowLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	l := &FixedWindowLimiter{
		limit:  requestsPerMinute,
		window: time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// Allow consumes one request from the current window or returns
// ErrLimitExceeded. It never blocks.
func (l *FixedWindowLimiter) Allow() error {
	_, err := l.allow()
	return err
}

// AllowWithWait behaves like Allow and also reports how long until the
// window resets when the request is rejected.
func (l *FixedWindowLimiter) AllowWithWait() (time.Duration, error) {
	return l.allow()
}

func (l *FixedWindowLimiter) allow() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.requestsMade = 0
		l.windowStart = now
	}

	if l.requestsMade >= l.limit {
		return l.windowStart.Add(l.window).Sub(now), ErrLimitExceeded
	}

	l.requestsMade++
	return 0, nil
}

func (l *FixedWindowLimiter) Info() WindowInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	return WindowInfo{
		RequestsMade: l.requestsMade,
		Limit:        l.limit,
		ResetAt:      l.windowStart.Add(l.window),
	}
}

func (l *FixedWindowLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}
