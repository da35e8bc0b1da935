// Package cache implements the tenant-scoped, tag-addressable cache
// the core uses to hold the materialized dependency graph and any
// other short-lived derived values.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTTL     = 30 * time.Minute
	SweepInterval  = 5 * time.Minute
	GraphTTL       = 1 * time.Hour
)

type entry struct {
	value     any
	tags      map[string]struct{}
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// InvalidationCallback is invoked once per invalidated entry with its
// full key and its effective tag set. Panics are recovered and logged;
// they never abort the sweep that triggered them.
type InvalidationCallback func(fullKey string, tags map[string]struct{})

// Cache is a process-wide, tenant-scoped key/value store with TTL
// expiry, per-entry tag sets, union-tag invalidation, and invalidation
// callbacks. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	// tagIndex maps a tag to the set of full keys currently carrying it,
	// so a tag-union invalidation never has to scan every entry.
	tagIndex map[string]map[string]struct{}

	callbacksMu sync.Mutex
	callbacks   map[int]InvalidationCallback
	nextCbID    int

	stats Stats

	log *zap.Logger

	sweepInterval time.Duration
	sweepStop     chan struct{}
	sweepDone     chan struct{}

	graphTTL time.Duration
}

type Option func(*Cache)

func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithSweepInterval overrides the default 5-minute background
// expiry sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepInterval = d }
}

// WithGraphTTL overrides the default one-hour TTL the graph builder
// caches a tenant's dependency graph under.
func WithGraphTTL(d time.Duration) Option {
	return func(c *Cache) { c.graphTTL = d }
}

// New creates a Cache and starts its background sweep goroutine.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]entry),
		tagIndex:      make(map[string]map[string]struct{}),
		callbacks:     make(map[int]InvalidationCallback),
		log:           zap.NewNop(),
		sweepInterval: SweepInterval,
		graphTTL:      GraphTTL,
		sweepStop:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

func fullKey(tenant, key string) string {
	return tenant + ":" + key
}

type SetOptions struct {
	TTL  time.Duration
	Tags []string
}

// Set stores value under (tenant, key). The entry's effective tag set
// is {tenant} union opts.Tags, so a tenant-wide invalidation always
// reaches every entry that tenant ever wrote.
func (c *Cache) Set(tenant, key string, value any, opts SetOptions) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tagSet := make(map[string]struct{}, len(opts.Tags)+1)
	tagSet[tenant] = struct{}{}
	for _, t := range opts.Tags {
		tagSet[t] = struct{}{}
	}

	fk := fullKey(tenant, key)
	e := entry{value: value, tags: tagSet, expiresAt: time.Now().Add(ttl)}

	c.mu.Lock()
	c.removeTagsLocked(fk)
	c.entries[fk] = e
	for tag := range tagSet {
		bucket, ok := c.tagIndex[tag]
		if !ok {
			bucket = make(map[string]struct{})
			c.tagIndex[tag] = bucket
		}
		bucket[fk] = struct{}{}
	}
	c.mu.Unlock()
}

// Get returns the stored value, or ok=false on miss or expiry. An
// expired entry is dropped inline and counted as an eviction.
func (c *Cache) Get(tenant, key string) (any, bool) {
	fk := fullKey(tenant, key)

	c.mu.RLock()
	e, found := c.entries[fk]
	c.mu.RUnlock()

	if !found {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	if e.expired(time.Now()) {
		c.mu.Lock()
		if current, stillThere := c.entries[fk]; stillThere && current.expired(time.Now()) {
			c.removeLocked(fk, current)
			c.stats.Evictions++
		}
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return e.value, true
}

// Has is equivalent to a non-null Get.
func (c *Cache) Has(tenant, key string) bool {
	_, ok := c.Get(tenant, key)
	return ok
}

// Delete removes the entry and fires invalidation callbacks with its
// tags. Returns whether an entry was actually present.
func (c *Cache) Delete(tenant, key string) bool {
	fk := fullKey(tenant, key)

	c.mu.Lock()
	e, found := c.entries[fk]
	if found {
		c.removeLocked(fk, e)
	}
	c.mu.Unlock()

	if found {
		c.notify(fk, e.tags)
	}
	return found
}

// InvalidateTenant removes every entry whose tag set contains tenant.
func (c *Cache) InvalidateTenant(tenant string) int {
	return c.invalidateByTagsUnion([]string{tenant})
}

// InvalidateByTag removes every entry carrying tag.
func (c *Cache) InvalidateByTag(tag string) int {
	return c.invalidateByTagsUnion([]string{tag})
}

// InvalidateByTags removes every entry carrying at least one of tags
// (union semantics).
func (c *Cache) InvalidateByTags(tags []string) int {
	return c.invalidateByTagsUnion(tags)
}

func (c *Cache) invalidateByTagsUnion(tags []string) int {
	type removed struct {
		key  string
		tags map[string]struct{}
	}

	c.mu.Lock()
	victims := make(map[string]struct{})
	for _, tag := range tags {
		for fk := range c.tagIndex[tag] {
			victims[fk] = struct{}{}
		}
	}
	out := make([]removed, 0, len(victims))
	for fk := range victims {
		e, ok := c.entries[fk]
		if !ok {
			continue
		}
		out = append(out, removed{key: fk, tags: e.tags})
		c.removeLocked(fk, e)
	}
	c.mu.Unlock()

	for _, r := range out {
		c.notify(r.key, r.tags)
	}
	return len(out)
}

// removeLocked deletes the entry and unindexes its tags. Caller holds c.mu.
func (c *Cache) removeLocked(fk string, e entry) {
	c.removeTagsLocked(fk)
	delete(c.entries, fk)
	_ = e
}

func (c *Cache) removeTagsLocked(fk string) {
	e, ok := c.entries[fk]
	if !ok {
		return
	}
	for tag := range e.tags {
		bucket := c.tagIndex[tag]
		delete(bucket, fk)
		if len(bucket) == 0 {
			delete(c.tagIndex, tag)
		}
	}
}

// OnInvalidation installs cb, called once per invalidated entry.
// Returns an unregister function.
func (c *Cache) OnInvalidation(cb InvalidationCallback) (unregister func()) {
	c.callbacksMu.Lock()
	id := c.nextCbID
	c.nextCbID++
	c.callbacks[id] = cb
	c.callbacksMu.Unlock()

	return func() {
		c.callbacksMu.Lock()
		delete(c.callbacks, id)
		c.callbacksMu.Unlock()
	}
}

func (c *Cache) notify(fullKey string, tags map[string]struct{}) {
	c.callbacksMu.Lock()
	cbs := make([]InvalidationCallback, 0, len(c.callbacks))
	for _, cb := range c.callbacks {
		cbs = append(cbs, cb)
	}
	c.callbacksMu.Unlock()

	for _, cb := range cbs {
		c.runCallback(cb, fullKey, tags)
	}
}

func (c *Cache) runCallback(cb InvalidationCallback, fullKey string, tags map[string]struct{}) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cache invalidation callback panicked",
				zap.String("key", fullKey), zap.Any("recovered", r))
		}
	}()
	cb(fullKey, tags)
}

// GetStats returns a snapshot of hit/miss/eviction counters and size.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

func (c *Cache) ResetStats() {
	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()
}

// Clear removes every entry without firing invalidation callbacks.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.tagIndex = make(map[string]map[string]struct{})
	c.mu.Unlock()
}

// Shutdown stops the background sweep and clears state. Safe to call
// once during orderly teardown.
func (c *Cache) Shutdown() {
	close(c.sweepStop)
	<-c.sweepDone
	c.Clear()
}

func (c *Cache) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.sweepStop:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()

	c.mu.Lock()
	var victims []struct {
		key  string
		tags map[string]struct{}
	}
	for fk, e := range c.entries {
		if e.expired(now) {
			victims = append(victims, struct {
				key  string
				tags map[string]struct{}
			}{fk, e.tags})
			c.removeLocked(fk, e)
		}
	}
	c.stats.Evictions += int64(len(victims))
	c.mu.Unlock()

	for _, v := range victims {
		c.notify(v.key, v.tags)
	}
	if len(victims) > 0 {
		c.log.Debug("cache sweep evicted entries", zap.Int("count", len(victims)))
	}
}

// DependencyGraphTTL returns the configured TTL for a cached dependency
// graph, overridable via WithGraphTTL.
func (c *Cache) DependencyGraphTTL() time.Duration {
	return c.graphTTL
}

// DependencyGraphKey is the fixed key the graph builder stores under.
// Combined with the tenant-scoped Set/Get, the effective cache key is
// "<tenant>:dependency-graph".
func DependencyGraphKey() string {
	return "dependency-graph"
}

const DependencyGraphTag = "dependency-graph"

// ScopedTag prefixes a tag with a tenant ID. Tags that are otherwise
// the same literal across every tenant (the dependency graph tag,
// "risk-scores", "impact-analysis") must go through this, or
// InvalidateByTag(s) on one tenant evicts every tenant's entries that
// happen to carry that same literal tag.
func ScopedTag(tenant, tag string) string {
	return tenant + ":" + tag
}

// DependencyGraphTagFor is the tenant-scoped form of DependencyGraphTag.
func DependencyGraphTagFor(tenant string) string {
	return ScopedTag(tenant, DependencyGraphTag)
}
