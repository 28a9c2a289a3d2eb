package sessionclient

import (
	"context"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const staticQuestionsKey = "static-questions"

// cacheEntry holds a cached payload with the time it was stored.
type cacheEntry struct {
	questions []Question
	detail    *SessionDetail
	storedAt  time.Time
}

// cachedClient caches the static battery and the detail of completed
// sessions. Both are immutable once the server has issued them.
type cachedClient struct {
	API
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

// WithCache wraps api with an LRU cache. Zero config values fall back to
// DefaultConfig's.
func WithCache(api API, cfg CacheConfig) (API, error) {
	def := DefaultConfig().Cache
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	cache, err := lru.New[string, cacheEntry](cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	return &cachedClient{API: api, cache: cache, ttl: cfg.TTL, now: time.Now}, nil
}

func (c *cachedClient) lookup(key string) (cacheEntry, bool) {
	entry, ok := c.cache.Get(key)
	if !ok {
		return cacheEntry{}, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.cache.Remove(key)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *cachedClient) FetchStaticQuestions(ctx context.Context) ([]Question, error) {
	if entry, ok := c.lookup(staticQuestionsKey); ok {
		return slices.Clone(entry.questions), nil
	}
	questions, err := c.API.FetchStaticQuestions(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(staticQuestionsKey, cacheEntry{questions: slices.Clone(questions), storedAt: c.now()})
	return questions, nil
}

func (c *cachedClient) FetchSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	key := "session:" + sessionID
	if entry, ok := c.lookup(key); ok {
		d := *entry.detail
		return &d, nil
	}
	detail, err := c.API.FetchSessionDetail(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Only completed sessions are frozen server-side.
	if detail.CompletedAt != nil {
		d := *detail
		c.cache.Add(key, cacheEntry{detail: &d, storedAt: c.now()})
	}
	return detail, nil
}
