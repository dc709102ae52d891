package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/current-weather-service/internal/cache"
	"github.com/kjstillabower/current-weather-service/internal/config"
)

func TestNewStore_InMemory(t *testing.T) {
	store, ping, closer := newStore(&config.Config{CacheBackend: "in_memory"}, zap.NewNop())

	assert.IsType(t, &cache.InMemoryStore{}, store)
	assert.Nil(t, ping)
	assert.Nil(t, closer)
}

func TestNewStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, ping, closer := newStore(&config.Config{
		CacheBackend:     "redis",
		RedisAddr:        mr.Addr(),
		RedisDialTimeout: time.Second,
	}, zap.NewNop())
	require.NotNil(t, closer)
	defer closer.Close()

	assert.IsType(t, &cache.RedisStore{}, store)
	require.NotNil(t, ping)
	assert.NoError(t, ping(context.Background()))

	mr.Close()
	assert.Error(t, ping(context.Background()))
}

func TestNewStore_Memcached(t *testing.T) {
	store, ping, closer := newStore(&config.Config{
		CacheBackend:          "memcached",
		MemcachedAddrs:        "localhost:11211",
		MemcachedTimeout:      100 * time.Millisecond,
		MemcachedMaxIdleConns: 1,
	}, zap.NewNop())

	assert.IsType(t, &cache.MemcachedStore{}, store)
	assert.NotNil(t, ping)
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
}
