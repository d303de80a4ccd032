package mapbox

import (
	"context"
	"sync"
)

// Geocoder is the place-search surface consumed by the HTTP layer.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, query string) ([]GeocodingResult, error)
}

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by the
// raw query. Routes are never cached: flood conditions change between
// requests, and the risk scoring runs on the live snapshot anyway.
type CachedGeocoder struct {
	inner Geocoder
	cache *lruCache[[]GeocodingResult]
	onHit func(hit bool)
}

// NewCachedGeocoder creates a cache decorator around a geocoder. onHit, if
// non-nil, is called per lookup for cache metrics.
func NewCachedGeocoder(inner Geocoder, maxEntries int, onHit func(hit bool)) *CachedGeocoder {
	return &CachedGeocoder{
		inner: inner,
		cache: newLRUCache[[]GeocodingResult](maxEntries),
		onHit: onHit,
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, query string) ([]GeocodingResult, error) {
	if results, ok := c.cache.get(query); ok {
		c.recordLookup(true)
		return results, nil
	}
	c.recordLookup(false)

	results, err := c.inner.ForwardGeocode(ctx, query)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if len(results) > 0 {
		c.cache.put(query, results)
	}
	return results, nil
}

func (c *CachedGeocoder) recordLookup(hit bool) {
	if c.onHit != nil {
		c.onHit(hit)
	}
}

// lruCache is a small thread-safe LRU keyed by string.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*lruEntry[V]
	head       *lruEntry[V] // most recently used
	tail       *lruEntry[V] // least recently used
}

type lruEntry[V any] struct {
	key   string
	value V
	prev  *lruEntry[V]
	next  *lruEntry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*lruEntry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &lruEntry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) moveToFront(e *lruEntry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *lruEntry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *lruEntry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
