package transitlake

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"
)

// ResponseCache stores serialized endpoint responses keyed by
// "<path>-<format>". A cache failure is a miss, never an error.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

type memcachedCache struct {
	client *memcache.Client
	logger *zap.Logger
}

func NewMemcachedCache(endpoint string, logger *zap.Logger) ResponseCache {
	return &memcachedCache{
		client: memcache.New(endpoint),
		logger: logger,
	}
}

func (c *memcachedCache) Get(key string) ([]byte, bool) {
	item, err := c.client.Get(key)
	if err != nil {
		if err != memcache.ErrCacheMiss {
			c.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return item.Value, true
}

func (c *memcachedCache) Set(key string, value []byte, ttl time.Duration) {
	err := c.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl.Seconds()),
	})
	if err != nil {
		c.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// nopCache serves a disabled cache configuration.
type nopCache struct{}

func (nopCache) Get(string) ([]byte, bool)         { return nil, false }
func (nopCache) Set(string, []byte, time.Duration) {}
