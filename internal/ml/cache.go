package ml

import (
	"container/list"
	"sync"
)

// EmbeddingCache is an LRU cache of embeddings keyed by hash.EmbeddingKey.
type EmbeddingCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	hits    int64
	misses  int64
}

type cacheEntry struct {
	key       string
	embedding []float32
}

// NewEmbeddingCache creates a new embedding cache.
func NewEmbeddingCache(maxSize int) *EmbeddingCache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	return &EmbeddingCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Get retrieves a copy of an embedding from cache.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	c.hits++
	c.order.MoveToFront(elem)

	emb := elem.Value.(*cacheEntry).embedding
	embCopy := make([]float32, len(emb))
	copy(embCopy, emb)
	return embCopy, true
}

// Set stores a copy of an embedding, evicting the least recently used entry.
func (c *EmbeddingCache) Set(key string, embedding []float32) {
	embCopy := make([]float32, len(embedding))
	copy(embCopy, embedding)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		elem.Value.(*cacheEntry).embedding = embCopy
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, embedding: embCopy})
}

// Stats returns cache statistics.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:    c.order.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size    int   `json:"size"`
	MaxSize int   `json:"max_size"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
