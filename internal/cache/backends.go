package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
)

type goCacheBackend struct {
	cache *gocache.Cache
}

func (b *goCacheBackend) get(key string) (entry, bool) {
	v, ok := b.cache.Get(key)
	if !ok {
		return entry{}, false
	}
	e, ok := v.(entry)
	return e, ok
}

// set never lets go-cache expire the item; freshness is judged on insertedAt
func (b *goCacheBackend) set(key string, e entry) {
	b.cache.Set(key, e, gocache.NoExpiration)
}

func (b *goCacheBackend) remove(key string) { b.cache.Delete(key) }
func (b *goCacheBackend) purge()            { b.cache.Flush() }

// len counts items including stale ones not yet read or swept
func (b *goCacheBackend) len() int { return b.cache.ItemCount() }

func (b *goCacheBackend) removeOlder(cutoff time.Time) int {
	n := 0
	for key, item := range b.cache.Items() {
		if e, ok := item.Object.(entry); ok && e.insertedAt.Before(cutoff) {
			b.cache.Delete(key)
			n++
		}
	}
	return n
}

type lruBackend struct {
	cache *lru.Cache[string, entry]
}

func (b *lruBackend) get(key string) (entry, bool) { return b.cache.Get(key) }
func (b *lruBackend) set(key string, e entry)      { b.cache.Add(key, e) }
func (b *lruBackend) remove(key string)            { b.cache.Remove(key) }
func (b *lruBackend) purge()                       { b.cache.Purge() }
func (b *lruBackend) len() int                     { return b.cache.Len() }

func (b *lruBackend) removeOlder(cutoff time.Time) int {
	n := 0
	for _, key := range b.cache.Keys() {
		if e, ok := b.cache.Peek(key); ok && e.insertedAt.Before(cutoff) {
			b.cache.Remove(key)
			n++
		}
	}
	return n
}
