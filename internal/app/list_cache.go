package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-progress-service/internal/domain"
)

// ListCache caches the metadata list with a short TTL so list pollers don't
// hammer the backing store. Concurrent refreshes collapse via singleflight.
type ListCache struct {
	store *QuizStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu        sync.RWMutex
	cached    []domain.QuizMetadata
	expiresAt time.Time
}

func NewListCache(store *QuizStore, ttl time.Duration) *ListCache {
	return &ListCache{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ListCache) List(ctx context.Context) []domain.QuizMetadata {
	now := c.clock()

	c.mu.RLock()
	if c.expiresAt.After(now) {
		cached := c.cached
		c.mu.RUnlock()
		return copyList(cached)
	}
	c.mu.RUnlock()

	result, _, _ := c.sf.Do(listKey, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if c.expiresAt.After(now) {
			cached := c.cached
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()

		list := c.store.ListQuizzes(ctx)

		c.mu.Lock()
		c.cached = list
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return list, nil
	})
	return copyList(result.([]domain.QuizMetadata))
}

// Invalidate drops the cached list. Called after create/complete/delete so
// the next List reflects the mutation immediately.
func (c *ListCache) Invalidate() {
	c.mu.Lock()
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *ListCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func copyList(list []domain.QuizMetadata) []domain.QuizMetadata {
	out := make([]domain.QuizMetadata, len(list))
	copy(out, list)
	return out
}
