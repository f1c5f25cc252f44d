// Package cache provides a namespaced in-memory cache with freshness
// checked at read time.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
)

// Namespace partitions the cache by content class
type Namespace string

const (
	NamespaceTMDB      Namespace = "tmdb"
	NamespaceVidSrc    Namespace = "vidsrc"
	NamespacePosters   Namespace = "posters"
	NamespaceBackdrops Namespace = "backdrops"
)

// Options configures one namespace. A positive MaxEntries bounds the
// namespace with least-recently-used eviction. A positive Retain starts a
// sweeper that drops entries older than Retain, so a Get with a maxAge
// above Retain can miss entries that were swept.
type Options struct {
	Duration   time.Duration
	MaxEntries int
	Retain     time.Duration
}

type entry struct {
	value      any
	insertedAt time.Time
}

// backend stores entries for a namespace
type backend interface {
	get(key string) (entry, bool)
	set(key string, e entry)
	remove(key string)
	purge()
	len() int
	removeOlder(cutoff time.Time) int
}

type namespace struct {
	mu       sync.Mutex
	duration time.Duration
	retain   time.Duration
	store    backend
}

// sweep drops entries inserted before now-retain
func (ns *namespace) sweep(now time.Time) int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.store.removeOlder(now.Add(-ns.retain))
}

// TieredCache maps namespace -> key -> value with per-entry insertion times
type TieredCache struct {
	mu         sync.RWMutex
	namespaces map[Namespace]*namespace
	now        func() time.Time
	onLookup   func(ns Namespace, hit bool)

	stop      chan struct{}
	closeOnce sync.Once
	sweepers  sync.WaitGroup
}

// New builds a cache with the given namespaces. Namespaces not listed are
// created on first use, unbounded and without a sweeper.
func New(opts map[Namespace]Options) *TieredCache {
	c := &TieredCache{
		namespaces: make(map[Namespace]*namespace, len(opts)),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	for name, o := range opts {
		ns := newNamespace(o)
		c.namespaces[name] = ns
		if ns.retain > 0 {
			c.sweepers.Add(1)
			go c.sweeper(ns)
		}
	}
	return c
}

func newNamespace(o Options) *namespace {
	ns := &namespace{duration: o.Duration, retain: o.Retain}
	if o.MaxEntries > 0 {
		l, err := lru.New[string, entry](o.MaxEntries)
		if err == nil {
			ns.store = &lruBackend{cache: l}
			return ns
		}
	}
	// go-cache's own janitor stays off; expiry is decided by insertedAt
	ns.store = &goCacheBackend{cache: gocache.New(gocache.NoExpiration, 0)}
	return ns
}

func (c *TieredCache) sweeper(ns *namespace) {
	defer c.sweepers.Done()
	ticker := time.NewTicker(ns.retain)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.RLock()
			now := c.now
			c.mu.RUnlock()
			ns.sweep(now())
		case <-c.stop:
			return
		}
	}
}

// OnLookup registers a callback invoked on every Get with the hit result
func (c *TieredCache) OnLookup(fn func(ns Namespace, hit bool)) {
	c.mu.Lock()
	c.onLookup = fn
	c.mu.Unlock()
}

func (c *TieredCache) namespace(name Namespace) *namespace {
	c.mu.RLock()
	ns, ok := c.namespaces[name]
	c.mu.RUnlock()
	if ok {
		return ns
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ns, ok = c.namespaces[name]; ok {
		return ns
	}
	ns = newNamespace(Options{})
	c.namespaces[name] = ns
	return ns
}

// Get returns the value for key if it was stored less than maxAge ago.
// Stale entries are deleted as they are found.
func (c *TieredCache) Get(name Namespace, key string, maxAge time.Duration) (any, bool) {
	ns := c.namespace(name)

	ns.mu.Lock()
	e, ok := ns.store.get(key)
	if ok && c.now().Sub(e.insertedAt) >= maxAge {
		ns.store.remove(key)
		ok = false
	}
	ns.mu.Unlock()

	c.mu.RLock()
	hook := c.onLookup
	c.mu.RUnlock()
	if hook != nil {
		hook(name, ok)
	}

	if !ok {
		return nil, false
	}
	return e.value, true
}

// Fresh is Get with the namespace's configured duration as maximum age
func (c *TieredCache) Fresh(name Namespace, key string) (any, bool) {
	return c.Get(name, key, c.namespace(name).duration)
}

// GetString is Get for string values
func (c *TieredCache) GetString(name Namespace, key string, maxAge time.Duration) (string, bool) {
	v, ok := c.Get(name, key, maxAge)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key, stamped with the current time
func (c *TieredCache) Set(name Namespace, key string, value any) {
	ns := c.namespace(name)
	ns.mu.Lock()
	ns.store.set(key, entry{value: value, insertedAt: c.now()})
	ns.mu.Unlock()
}

// Delete removes a single key
func (c *TieredCache) Delete(name Namespace, key string) {
	ns := c.namespace(name)
	ns.mu.Lock()
	ns.store.remove(key)
	ns.mu.Unlock()
}

// Clear empties the given namespaces, or every namespace when none are given
func (c *TieredCache) Clear(names ...Namespace) {
	for _, ns := range c.selected(names) {
		ns.mu.Lock()
		ns.store.purge()
		ns.mu.Unlock()
	}
}

// Size counts entries in the given namespaces, or in all of them
func (c *TieredCache) Size(names ...Namespace) int {
	total := 0
	for _, ns := range c.selected(names) {
		ns.mu.Lock()
		total += ns.store.len()
		ns.mu.Unlock()
	}
	return total
}

// Stats returns the entry count per namespace
func (c *TieredCache) Stats() map[Namespace]int {
	c.mu.RLock()
	names := make([]Namespace, 0, len(c.namespaces))
	for name := range c.namespaces {
		names = append(names, name)
	}
	c.mu.RUnlock()

	out := make(map[Namespace]int, len(names))
	for _, name := range names {
		out[name] = c.Size(name)
	}
	return out
}

// Close stops background sweepers and waits for them to exit. It is safe
// to call more than once.
func (c *TieredCache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	c.sweepers.Wait()
}

func (c *TieredCache) selected(names []Namespace) []*namespace {
	if len(names) > 0 {
		out := make([]*namespace, 0, len(names))
		for _, name := range names {
			out = append(out, c.namespace(name))
		}
		return out
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*namespace, 0, len(c.namespaces))
	for _, ns := range c.namespaces {
		out = append(out, ns)
	}
	return out
}
