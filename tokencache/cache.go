// Package tokencache caches OAuth access tokens per credential UUID and
// coordinates refreshes so at most one refresh network call is in flight
// per credential, no matter how many callers ask concurrently. This is the
// idiomatic Go replacement for the ad hoc mutex-per-key pattern seen in the
// teacher's llm/apikey_pool.go async-update paths:
// golang.org/x/sync/singleflight gives the "one refresh in flight" contract
// directly.
package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tytsxai/proxycast/credential"
	"github.com/tytsxai/proxycast/errs"
)

// ValidityMargin is how far ahead of expiry a token is still considered
// usable; refresh is triggered once less than this much time remains.
const ValidityMargin = 5 * time.Minute

// Entry is one credential's cached OAuth state.
type Entry struct {
	AccessToken  string
	Expiry       time.Time
	RefreshToken string
	LastRefresh  time.Time
}

// Valid reports whether the entry is usable without a refresh.
func (e Entry) Valid() bool {
	return !e.Expiry.IsZero() && time.Now().Add(ValidityMargin).Before(e.Expiry)
}

// Refresher performs a provider-specific OAuth refresh for one credential.
type Refresher interface {
	Refresh(ctx context.Context, cred credential.Credential, current Entry) (Entry, error)
}

// Persister writes a refreshed Entry back to the provider-specific
// credential file on disk (see §6 "Credential files on disk").
type Persister interface {
	Persist(cred credential.Credential, entry Entry) error
}

// Cache is a concurrent, per-credential-UUID OAuth token cache.
type Cache struct {
	mu         sync.RWMutex
	entries    map[uuid.UUID]Entry
	group      singleflight.Group
	refreshers map[credential.Kind]Refresher
	persister  Persister
	pool       *credential.Pool
	logger     *zap.Logger
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithPersister attaches a Persister; refreshed entries are otherwise kept
// in memory only.
func WithPersister(p Persister) Option {
	return func(c *Cache) { c.persister = p }
}

// WithLogger attaches a zap logger; a nop logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache backed by pool for health-state updates on auth
// failure.
func New(pool *credential.Pool, opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[uuid.UUID]Entry),
		refreshers: make(map[credential.Kind]Refresher),
		pool:       pool,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register installs the Refresher used for credentials of the given Kind.
func (c *Cache) Register(kind credential.Kind, r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshers[kind] = r
}

// Seed installs a known-good entry, e.g. loaded from a credential file at
// startup, without going through the refresh path.
func (c *Cache) Seed(id uuid.UUID, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry
}

// GetValidToken returns a usable access token for the credential,
// refreshing it first if necessary. Concurrent callers for the same id
// observe the result of a single refresh call.
func (c *Cache) GetValidToken(ctx context.Context, id uuid.UUID) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if ok && entry.Valid() {
		return entry.AccessToken, nil
	}

	v, err, _ := c.group.Do(id.String(), func() (any, error) {
		// Re-check: another caller may have refreshed while we waited to
		// enter the singleflight group.
		c.mu.RLock()
		entry, ok := c.entries[id]
		c.mu.RUnlock()
		if ok && entry.Valid() {
			return entry, nil
		}
		return c.refresh(ctx, id, entry)
	})
	if err != nil {
		return "", err
	}
	return v.(Entry).AccessToken, nil
}

func (c *Cache) refresh(ctx context.Context, id uuid.UUID, current Entry) (Entry, error) {
	cred, ok := c.pool.Get(id)
	if !ok {
		return Entry{}, fmt.Errorf("tokencache: unknown credential %s", id)
	}

	c.mu.RLock()
	refresher, ok := c.refreshers[cred.Kind]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, fmt.Errorf("tokencache: no refresher registered for kind %s", cred.Kind)
	}

	var last error
	backoff := time.Second
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Entry{}, ctx.Err()
			}
			backoff *= 2
		}

		entry, err := refresher.Refresh(ctx, cred, current)
		if err == nil {
			entry.LastRefresh = time.Now()
			c.mu.Lock()
			c.entries[id] = entry
			c.mu.Unlock()
			if c.persister != nil {
				if perr := c.persister.Persist(cred, entry); perr != nil {
					c.logger.Warn("failed to persist refreshed token",
						zap.String("credential_id", id.String()), zap.Error(perr))
				}
			}
			return entry, nil
		}

		last = err
		var pe *errs.Error
		if errors.As(err, &pe) && pe.Code == errs.AuthenticationFailure {
			_ = c.pool.MarkUnhealthy(id, "refresh_token invalid — re-authenticate")
			return Entry{}, err
		}
		if !errs.IsRetryable(err) {
			return Entry{}, err
		}
	}
	return Entry{}, fmt.Errorf("tokencache: refresh failed after retries: %w", last)
}
