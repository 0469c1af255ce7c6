// Package registry provides a short-TTL, read-through cache over the
// delegate, profile and setup-entity tables.
//
// Selection log queries flatten every entry into one row per delegate, so a
// single task narrative looks up the same delegate and profile many times.
// Cache collapses those into one storage read per key per TTL window, and
// concurrent misses for the same key share a single in-flight read.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/haken/internal/model"
	"github.com/ashita-ai/haken/internal/storage"
)

// lookupTimeout bounds a shared storage read, which outlives the cancellation
// of whichever caller started it.
const lookupTimeout = 5 * time.Second

// Source is the storage surface the cache reads through.
// Implementations return storage.ErrNotFound for absent rows.
type Source interface {
	GetDelegate(ctx context.Context, accountID, delegateID string) (model.Delegate, error)
	GetDelegateProfile(ctx context.Context, accountID, profileID string) (model.DelegateProfile, error)
	GetEntityName(ctx context.Context, kind model.EntityKind, accountID, id string) (string, error)
}

// Cache memoizes registry lookups, including negative results.
// Call Close to stop the background eviction goroutine.
type Cache struct {
	src   Source
	ttl   time.Duration
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cachedEntry
	done    chan struct{}
	once    sync.Once
}

type cachedEntry struct {
	value     any
	found     bool
	expiresAt time.Time
}

// lookupResult is what a singleflight call hands to every waiter.
type lookupResult struct {
	value any
	found bool
}

// New creates a cache over src with the given TTL.
func New(src Source, ttl time.Duration) *Cache {
	c := &Cache{
		src:     src,
		ttl:     ttl,
		entries: make(map[string]cachedEntry),
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Delegate returns the delegate with the given id. found is false when the
// delegate no longer exists; err is set only for storage failures.
func (c *Cache) Delegate(ctx context.Context, accountID, delegateID string) (model.Delegate, bool, error) {
	v, found, err := c.lookup(ctx, "delegate:"+accountID+":"+delegateID, func(ctx context.Context) (any, error) {
		return c.src.GetDelegate(ctx, accountID, delegateID)
	})
	if err != nil || !found {
		return model.Delegate{}, false, err
	}
	return v.(model.Delegate), true, nil
}

// Profile returns the delegate profile with the given id.
func (c *Cache) Profile(ctx context.Context, accountID, profileID string) (model.DelegateProfile, bool, error) {
	v, found, err := c.lookup(ctx, "profile:"+accountID+":"+profileID, func(ctx context.Context) (any, error) {
		return c.src.GetDelegateProfile(ctx, accountID, profileID)
	})
	if err != nil || !found {
		return model.DelegateProfile{}, false, err
	}
	return v.(model.DelegateProfile), true, nil
}

// EntityName returns the display name of an application, service or environment.
func (c *Cache) EntityName(ctx context.Context, kind model.EntityKind, accountID, id string) (string, bool, error) {
	v, found, err := c.lookup(ctx, string(kind)+":"+accountID+":"+id, func(ctx context.Context) (any, error) {
		return c.src.GetEntityName(ctx, kind, accountID, id)
	})
	if err != nil || !found {
		return "", false, err
	}
	return v.(string), true, nil
}

// Close stops the background eviction goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) lookup(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, bool, error) {
	if e, ok := c.get(key); ok {
		return e.value, e.found, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		v, err := fetch(fctx)
		switch {
		case err == nil:
			c.set(key, v, true)
			return lookupResult{value: v, found: true}, nil
		case errors.Is(err, storage.ErrNotFound):
			c.set(key, nil, false)
			return lookupResult{}, nil
		default:
			return nil, err
		}
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, fmt.Errorf("registry: lookup %s: %w", key, res.Err)
		}
		r := res.Val.(lookupResult)
		return r.value, r.found, nil
	}
}

func (c *Cache) get(key string) (cachedEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return cachedEntry{}, false
	}
	return e, true
}

func (c *Cache) set(key string, value any, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedEntry{
		value:     value,
		found:     found,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// evictLoop removes expired entries every minute.
func (c *Cache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}
