package scraper

import (
	"container/list"
	"sync"
	"time"
)

// pageCache is a bounded LRU cache with per-entry TTL. Thread-safe.
type pageCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	cap     int
	ttl     time.Duration
}

type cacheEntry struct {
	key     string
	page    *Page
	expires time.Time
}

func newPageCache(capacity int, ttl time.Duration) *pageCache {
	return &pageCache{
		entries: make(map[string]*list.Element, capacity),
		order:   list.New(),
		cap:     capacity,
		ttl:     ttl,
	}
}

// get returns a live entry and marks it recently used. Expired entries are
// removed on access.
func (c *pageCache) get(key string) (*Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.page, true
}

// put inserts or refreshes an entry, evicting the least recently used one
// when over capacity.
func (c *pageCache) put(key string, page *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(c.ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.page = page
		entry.expires = expires
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, page: page, expires: expires})
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// len reports the number of cached entries, expired or not.
func (c *pageCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
