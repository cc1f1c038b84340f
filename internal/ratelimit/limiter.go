package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 200
	DefaultMaxKeys     = 10000
)

type Config struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int
	MaxKeys     int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = DefaultMaxKeys
	}
	return c
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window counter per key, local to this process.
// Windows live in a bounded LRU so idle clients are evicted.
type MemoryLimiter struct {
	mu      sync.Mutex
	config  Config
	windows *expirable.LRU[string, *window]
	now     func() time.Time
}

func NewMemoryLimiter(config Config) *MemoryLimiter {
	config = config.withDefaults()
	return &MemoryLimiter{
		config:  config,
		windows: expirable.NewLRU[string, *window](config.MaxKeys, nil, 2*config.Window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if !l.config.Enabled {
		return Decision{Allowed: true, Remaining: l.config.MaxRequests}, nil
	}

	now := l.now()

	// check, reset and increment must not interleave between requests
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows.Get(key)
	if !ok || now.After(w.start.Add(l.config.Window)) {
		w = &window{start: now}
		l.windows.Add(key, w)
	}
	w.count++

	if w.count <= l.config.MaxRequests {
		return Decision{Allowed: true, Remaining: l.config.MaxRequests - w.count}, nil
	}

	retryAfter := w.start.Add(l.config.Window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}
