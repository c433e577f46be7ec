package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	URL string
	// prefix for every key written, so several deployments can share a server
	Namespace string
	TTL       time.Duration
	// entries kept in the in-process TinyLFU in front of redis; zero disables it
	LocalSize int
}

// Redis-backed cache shared between daemon replicas.
type RedisCacheStore struct {
	client *redis.Client
	data   *cache.Cache
	config RedisConfig
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(ctx context.Context, config RedisConfig) (*RedisCacheStore, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if config.Namespace == "" {
		config.Namespace = "tweetor"
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	opts := &cache.Options{Redis: client}
	if config.LocalSize > 0 {
		// local entries must not outlive the shared ones
		opts.LocalCache = cache.NewTinyLFU(config.LocalSize, config.TTL)
	}
	return &RedisCacheStore{
		client: client,
		data:   cache.New(opts),
		config: config,
	}, nil
}

func (s *RedisCacheStore) fullKey(key string) string {
	return s.config.Namespace + "/cache/" + key
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.data.Get(ctx, s.fullKey(key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		countLookup("redis", false)
		return "", false, nil
	}
	if err != nil {
		countLookup("redis_error", false)
		return "", false, err
	}
	countLookup("redis", true)
	return val, true, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, key, val string) error {
	return s.data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   s.fullKey(key),
		Value: val,
		TTL:   s.config.TTL,
	})
}

func (s *RedisCacheStore) Purge(ctx context.Context, key string) error {
	err := s.data.Delete(ctx, s.fullKey(key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *RedisCacheStore) Close() error {
	return s.client.Close()
}
