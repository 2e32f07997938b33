package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"medquiz-service/internal/app"
	"medquiz-service/internal/domain"
)

// ItemCache caches quiz items in Redis (one hash per item) and falls back to a loader on miss.
//
//	HSET quiz:question:{id} prompt .. answer 1|0 explanation .. category .. subcategory ..
//	HSET quiz:image:{id}    image_url .. correct .. options [json] explanation .. category .. subcategory ..
type ItemCache struct {
	client *redis.Client
	loader app.ItemRepository
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewItemCache(client *redis.Client, loader app.ItemRepository, ttl time.Duration) *ItemCache {
	return &ItemCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ItemCache) GetQuestion(ctx context.Context, id int64) (domain.Question, error) {
	key := questionKey(id)
	if fields, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
		return questionFromHash(id, fields), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if fields, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
			return questionFromHash(id, fields), nil
		}
		q, err := c.loader.GetQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		answer := "0"
		if q.Answer {
			answer = "1"
		}
		c.store(ctx, key, map[string]interface{}{
			"prompt":      q.Prompt,
			"answer":      answer,
			"explanation": q.Explanation,
			"category":    q.Category,
			"subcategory": q.Subcategory,
		})
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *ItemCache) GetImageItem(ctx context.Context, id int64) (domain.ImageItem, error) {
	key := imageKey(id)
	if fields, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
		if item, ok := imageFromHash(id, fields); ok {
			return item, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if fields, err := c.client.HGetAll(ctx, key).Result(); err == nil && len(fields) > 0 {
			if item, ok := imageFromHash(id, fields); ok {
				return item, nil
			}
		}
		item, err := c.loader.GetImageItem(ctx, id)
		if err != nil {
			return domain.ImageItem{}, err
		}
		options, err := json.Marshal(item.Options)
		if err != nil {
			return item, nil
		}
		c.store(ctx, key, map[string]interface{}{
			"image_url":   item.ImageURL,
			"correct":     item.CorrectAnswer,
			"options":     string(options),
			"explanation": item.Explanation,
			"category":    item.Category,
			"subcategory": item.Subcategory,
		})
		return item, nil
	})
	if err != nil {
		return domain.ImageItem{}, err
	}
	return result.(domain.ImageItem), nil
}

// store is best-effort; a failed write only costs a reload.
func (c *ItemCache) store(ctx context.Context, key string, fields map[string]interface{}) {
	ttl := c.ttlWithJitter()
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func questionKey(id int64) string {
	return "quiz:question:" + strconv.FormatInt(id, 10)
}

func imageKey(id int64) string {
	return "quiz:image:" + strconv.FormatInt(id, 10)
}

func questionFromHash(id int64, f map[string]string) domain.Question {
	return domain.Question{
		ID:          id,
		Prompt:      f["prompt"],
		Answer:      f["answer"] == "1",
		Explanation: f["explanation"],
		Category:    f["category"],
		Subcategory: f["subcategory"],
	}
}

func imageFromHash(id int64, f map[string]string) (domain.ImageItem, bool) {
	var options []string
	if err := json.Unmarshal([]byte(f["options"]), &options); err != nil {
		return domain.ImageItem{}, false
	}
	return domain.ImageItem{
		ID:            id,
		Category:      f["category"],
		Subcategory:   f["subcategory"],
		ImageURL:      f["image_url"],
		CorrectAnswer: f["correct"],
		Options:       options,
		Explanation:   f["explanation"],
	}, true
}

func (c *ItemCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
