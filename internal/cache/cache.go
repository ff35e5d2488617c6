/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache implements the process-local metadata cache: a bounded LRU
// keyed by (adapter, entity-kind, entity-key), positive and negative TTLs,
// single-flight coalescing of concurrent misses, and an optional bounded
// grace period for serving stale entries while a refresh is in flight.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/xregistry-bridge/bridge/pkg/logger"
)

// ErrNotFound is the sentinel a Fetch function returns to indicate the
// upstream entity does not exist; the cache records this as a negative
// entry. Any other error propagates without being cached.
var ErrNotFound = errors.New("entity not found")

// Key identifies a cached value.
type Key struct {
	Adapter    string
	EntityKind string
	EntityKey  string
}

// String renders a Key as a single human-readable identity string, used in
// logging and metrics labels.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Adapter, k.EntityKind, k.EntityKey)
}

// shardKey reduces a Key to a fixed-width xxhash digest for use as the
// actual LRU/single-flight map key, so an adapter with long entity keys
// (OCI digests, scoped npm names, Maven groupId/artifactId pairs) never
// grows the store's key footprint with them.
func (k Key) shardKey() string {
	h := xxhash.New()
	_, _ = h.WriteString(k.Adapter)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(k.EntityKind)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(k.EntityKey)

	return strconv.FormatUint(h.Sum64(), 16)
}

// Config configures a Cache instance.
type Config struct {
	// Size bounds the number of entries held in the LRU.
	Size int
	// PositiveTTL is how long a successfully fetched entry stays fresh.
	PositiveTTL time.Duration
	// NegativeTTL is how long an ErrNotFound result is cached.
	NegativeTTL time.Duration
	// GraceTTL is how long a stale entry MAY still be served, at the
	// adapter's option, while a refresh is in flight. Zero disables grace
	// serving (the default, per spec).
	GraceTTL time.Duration
}

// DefaultConfig returns the spec-documented defaults: 15 minute positive
// TTL, 60 second negative TTL, no grace period.
func DefaultConfig() Config {
	return Config{
		Size:        10000,
		PositiveTTL: 15 * time.Minute,
		NegativeTTL: 60 * time.Second,
		GraceTTL:    0,
	}
}

type entry struct {
	value     interface{}
	err       error
	fetchedAt time.Time
	negative  bool
}

func (e entry) freshUntil(cfg Config) time.Time {
	if e.negative {
		return e.fetchedAt.Add(cfg.NegativeTTL)
	}

	return e.fetchedAt.Add(cfg.PositiveTTL)
}

func (e entry) staleUntil(cfg Config) time.Time {
	return e.freshUntil(cfg).Add(cfg.GraceTTL)
}

// Metrics counts cache activity. Every update happens under the struct's own
// mutex; read the counters through Snapshot (or Cache.Metrics), which copies
// them under that mutex.
type Metrics struct {
	mu        sync.Mutex
	Hits      int64
	Misses    int64
	Evictions int64
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Metrics{Hits: m.Hits, Misses: m.Misses, Evictions: m.Evictions}
}

func (m *Metrics) recordHit() {
	m.mu.Lock()
	m.Hits++
	m.mu.Unlock()
}

func (m *Metrics) recordMiss() {
	m.mu.Lock()
	m.Misses++
	m.mu.Unlock()
}

func (m *Metrics) recordEviction() {
	m.mu.Lock()
	m.Evictions++
	m.mu.Unlock()
}

// Cache is a process-local, single-flight-coalesced, LRU-bounded metadata
// cache keyed by (adapter, entity-kind, entity-key).
type Cache struct {
	cfg     Config
	store   *lru.Cache[string, entry]
	group   singleflight.Group
	metrics Metrics
	log     logger.Logger
	now     func() time.Time
}

// New constructs a Cache. log may be nil, in which case a no-op logger is
// used.
func New(cfg Config, log logger.Logger) (*Cache, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	c := &Cache{cfg: cfg, log: log, now: time.Now}

	store, err := lru.NewWithEvict[string, entry](cfg.Size, func(string, entry) {
		c.metrics.recordEviction()
	})
	if err != nil {
		return nil, fmt.Errorf("constructing lru store: %w", err)
	}

	c.store = store

	return c, nil
}

// FetchFunc retrieves a fresh value for a Key from upstream. It should
// return ErrNotFound for a definitive 404; any other error is treated as
// transient and never cached.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Get resolves key, returning a cached value if fresh, otherwise invoking
// fetch with single-flight coalescing across concurrent callers for the
// same key. A context-cancelled caller detaches from the shared fetch
// without cancelling it for other waiters (singleflight.Group semantics).
func (c *Cache) Get(ctx context.Context, key Key, fetch FetchFunc) (interface{}, error) {
	k := key.shardKey()
	now := c.now()

	if e, ok := c.store.Get(k); ok {
		if now.Before(e.freshUntil(c.cfg)) {
			c.metrics.recordHit()

			if e.negative {
				return nil, ErrNotFound
			}

			return e.value, nil
		}

		if c.cfg.GraceTTL > 0 && now.Before(e.staleUntil(c.cfg)) {
			// Serve stale while a refresh happens in the background.
			c.metrics.recordHit()
			go c.refresh(context.WithoutCancel(ctx), k, fetch)

			if e.negative {
				return nil, ErrNotFound
			}

			return e.value, nil
		}
	}

	c.metrics.recordMiss()

	// The shared fetch runs detached from any single caller's cancellation,
	// so one waiter giving up never cancels it for the others.
	ch := c.group.DoChan(k, func() (interface{}, error) {
		val, ferr := fetch(context.WithoutCancel(ctx))

		switch {
		case ferr == nil:
			c.store.Add(k, entry{value: val, fetchedAt: c.now()})
		case errors.Is(ferr, ErrNotFound):
			c.store.Add(k, entry{err: ferr, fetchedAt: c.now(), negative: true})
		default:
			// Transient errors are never cached.
		}

		return val, ferr
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val, nil
	}
}

func (c *Cache) refresh(ctx context.Context, k string, fetch FetchFunc) {
	_, err, _ := c.group.Do(k, func() (interface{}, error) {
		val, ferr := fetch(ctx)

		switch {
		case ferr == nil:
			c.store.Add(k, entry{value: val, fetchedAt: c.now()})
		case errors.Is(ferr, ErrNotFound):
			c.store.Add(k, entry{err: ferr, fetchedAt: c.now(), negative: true})
		default:
		}

		return val, ferr
	})
	if err != nil {
		c.log.WithComponent("cache").Debug().Err(err).Str("key", k).Msg("background grace refresh failed")
	}
}

// Metrics returns the cache's hit/miss/eviction counters.
func (c *Cache) Metrics() Metrics {
	return c.metrics.Snapshot()
}

// Purge clears every entry; intended for tests.
func (c *Cache) Purge() {
	c.store.Purge()
}
