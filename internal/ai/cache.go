package ai

import (
	"strings"
	"sync"

	"github.com/coocood/freecache"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultCacheEntries = 200

	cacheBytes = 1024 * 1024
	tagSep     = "\n"
)

// TagCache memoizes generated tags per (title, author, text). It holds at most
// capacity entries and is emptied completely when a new entry would exceed it.
type TagCache struct {
	mu       sync.Mutex
	cache    *freecache.Cache
	capacity int
}

func NewTagCache(capacity int) *TagCache {
	if capacity <= 0 {
		capacity = DefaultCacheEntries
	}
	return &TagCache{
		cache:    freecache.NewCache(cacheBytes),
		capacity: capacity,
	}
}

func (c *TagCache) Get(title, author, text string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, err := c.cache.Get(cacheKey(title, author, text))
	if err != nil {
		return nil, false
	}
	return strings.Split(string(val), tagSep), true
}

// Put stores tags. Empty results are never cached so they are retried later.
// Entries too large for the cache are rejected with freecache.ErrLargeEntry.
func (c *TagCache) Put(title, author, text string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(title, author, text)
	if _, err := c.cache.Get(key); err != nil && int(c.cache.EntryCount()) >= c.capacity {
		c.cache.Clear()
	}
	return c.cache.Set(key, []byte(strings.Join(tags, tagSep)), 0)
}

func (c *TagCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.cache.EntryCount())
}

func cacheKey(title, author, text string) []byte {
	sum := blake2b.Sum256([]byte(title + "\x00" + author + "\x00" + text))
	return sum[:]
}
