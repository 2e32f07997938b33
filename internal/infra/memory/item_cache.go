package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"medquiz-service/internal/app"
	"medquiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ItemCache caches quiz items with TTL to avoid repeated DB hits.
type ItemCache struct {
	loader app.ItemRepository
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedItem
}

type cachedItem struct {
	value     any
	expiresAt time.Time
}

func NewItemCache(loader app.ItemRepository, ttl time.Duration) *ItemCache {
	return &ItemCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedItem),
	}
}

func (c *ItemCache) GetQuestion(ctx context.Context, id int64) (domain.Question, error) {
	return cached(c, "q:"+strconv.FormatInt(id, 10), func() (domain.Question, error) {
		return c.loader.GetQuestion(ctx, id)
	})
}

func (c *ItemCache) GetImageItem(ctx context.Context, id int64) (domain.ImageItem, error) {
	return cached(c, "i:"+strconv.FormatInt(id, 10), func() (domain.ImageItem, error) {
		return c.loader.GetImageItem(ctx, id)
	})
}

func cached[T any](c *ItemCache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v.(T), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		now := c.clock()
		v, err := load()
		if err != nil {
			return nil, err
		}
		expiresAt := now.Add(c.ttlWithJitter())
		c.mu.Lock()
		c.cache[key] = cachedItem{value: v, expiresAt: expiresAt}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (c *ItemCache) lookup(key string) (any, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		return entry.value, true
	}
	return nil, false
}

// ttlWithJitter takes c.mu; rand.Rand is not goroutine-safe.
func (c *ItemCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
