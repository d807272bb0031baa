package cache

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

// QuestionCache is a read-through cache in front of the question source.
// Question content is immutable during a game, so a cached copy with TTL
// is always safe to serve. Singleflight collapses the stampede when a
// whole room requests the same question at reveal time.
type QuestionCache struct {
	client *redis.Client
	source repository.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

// NewQuestionCache creates a question cache with the given TTL.
func NewQuestionCache(client *redis.Client, source repository.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) key(genre, unitID, quizID string) string {
	return "question:" + genre + ":" + unitID + ":" + quizID
}

func (c *QuestionCache) Lookup(ctx context.Context, genre, unitID, quizID string) (*model.Question, error) {
	key := c.key(genre, unitID, quizID)
	if q, ok := c.fromCache(ctx, key); ok {
		return q, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if q, ok := c.fromCache(ctx, key); ok {
			return q, nil
		}
		q, err := c.source.Lookup(ctx, genre, unitID, quizID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(q); err == nil {
			c.client.Set(ctx, key, data, c.ttlWithJitter())
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Question), nil
}

// ListUnit delegates straight to the source; unit listings happen once
// per room creation and are not worth caching.
func (c *QuestionCache) ListUnit(ctx context.Context, genre, unitID string) ([]string, error) {
	return c.source.ListUnit(ctx, genre, unitID)
}

func (c *QuestionCache) fromCache(ctx context.Context, key string) (*model.Question, bool) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var q model.Question
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, false
	}
	return &q, true
}

// ttlWithJitter spreads expiry so a unit's questions do not all fall out
// of cache in the same instant.
func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
