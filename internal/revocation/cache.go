package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/nadajinny/GROO/internal/observability"
)

const keyPrefix = "auth:blacklist:"

// Result is the outcome of a revocation lookup. StoreUnavailable is kept
// apart from Allowed so callers can choose their own failure policy.
type Result int

const (
	Allowed Result = iota
	Blocked
	StoreUnavailable
)

func (r Result) String() string {
	switch r {
	case Allowed:
		return "allowed"
	case Blocked:
		return "blocked"
	case StoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Store is the shared key/value backend holding blacklist entries.
type Store interface {
	Set(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

type Cache struct {
	store    Store
	logger   *observability.Logger
	failOpen bool
}

func NewCache(store Store, logger *observability.Logger) *Cache {
	if logger == nil {
		logger = observability.Discard()
	}
	return &Cache{store: store, logger: logger, failOpen: true}
}

// WithFailClosed makes IsBlacklisted treat an unreachable store as blocked.
func (c *Cache) WithFailClosed() *Cache {
	c.failOpen = false
	return c
}

// Blacklist records token as revoked for ttl. Store failures are logged and
// swallowed so logout never fails on a cache outage.
func (c *Cache) Blacklist(ctx context.Context, token string, ttl time.Duration) {
	if strings.TrimSpace(token) == "" || ttl <= 0 {
		return
	}

	if err := c.store.Set(ctx, Key(token), ttl); err != nil {
		observability.RevocationStoreErrors.WithLabelValues("blacklist").Inc()
		c.logger.Warn("revocation_blacklist_failed", map[string]any{"error": err.Error()})
	}
}

func (c *Cache) Check(ctx context.Context, token string) Result {
	if strings.TrimSpace(token) == "" {
		return Allowed
	}

	exists, err := c.store.Exists(ctx, Key(token))
	if err != nil {
		observability.RevocationStoreErrors.WithLabelValues("check").Inc()
		c.logger.Warn("revocation_check_failed", map[string]any{"error": err.Error()})
		return StoreUnavailable
	}
	if exists {
		return Blocked
	}
	return Allowed
}

func (c *Cache) IsBlacklisted(ctx context.Context, token string) bool {
	switch c.Check(ctx, token) {
	case Blocked:
		return true
	case StoreUnavailable:
		return !c.failOpen
	default:
		return false
	}
}

// Key derives the store key. Tokens are hashed so raw bearer tokens never
// land in the cache.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}
