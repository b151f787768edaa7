// Package cache keeps recently hydrated transcript text in memory so
// repeated searches over the same window do not re-read large files.
package cache

import (
	"container/list"
	"sync"
)

// TextCache is a bounded LRU keyed by session ID. Entries are the
// concatenated searchable text of a hydrated session.
type TextCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type entry struct {
	id   string
	text string
}

// New returns a cache holding at most capacity sessions. A capacity
// of zero or less disables caching.
func New(capacity int) *TextCache {
	return &TextCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *TextCache) Get(id string) (string, bool) {
	if c.capacity <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[id]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).text, true
}

func (c *TextCache) Put(id, text string) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[id]; ok {
		el.Value.(*entry).text = text
		c.order.MoveToFront(el)
		return
	}
	c.entries[id] = c.order.PushFront(&entry{id: id, text: text})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).id)
	}
}

// Invalidate drops the entry for id, if present. Called when a file
// changes on disk.
func (c *TextCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[id]; ok {
		c.order.Remove(el)
		delete(c.entries, id)
	}
}

func (c *TextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
