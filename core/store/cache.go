package store

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/relabs-tech/ghcrawler/core/document"
)

// readCache is the process-local read-through cache in front of a store.
// It is best effort: entries expire after the TTL and are dropped on
// upsert and delete of the same URL.
type readCache struct {
	lru *expirable.LRU[string, *document.Document]
}

func newReadCache(size int, ttl time.Duration) *readCache {
	return &readCache{
		lru: expirable.NewLRU[string, *document.Document](size, nil, ttl),
	}
}

func (c *readCache) get(url string) (*document.Document, bool) {
	return c.lru.Get(url)
}

func (c *readCache) put(url string, doc *document.Document) {
	c.lru.Add(url, doc)
}

func (c *readCache) drop(url string) {
	c.lru.Remove(url)
}
