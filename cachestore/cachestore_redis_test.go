package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	cs, err := NewRedisCacheStore(ctx, RedisConfig{
		URL:       "redis://localhost:6379/0",
		Namespace: "tweetor-test",
		TTL:       time.Minute,
		LocalSize: 100,
	})
	require.NoError(t, err)
	defer cs.Close()

	assert.NoError(cs.Set(ctx, "abc", "reject:drug"))
	v, ok, err := cs.Get(ctx, "abc")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("reject:drug", v)

	assert.NoError(cs.Purge(ctx, "abc"))
	assert.NoError(cs.Purge(ctx, "abc"))
	_, ok, err = cs.Get(ctx, "abc")
	assert.NoError(err)
	assert.False(ok)
}

func TestRedisCacheStoreBadURL(t *testing.T) {
	_, err := NewRedisCacheStore(context.Background(), RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}
