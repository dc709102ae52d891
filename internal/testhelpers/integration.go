//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/current-weather-service/internal/cache"
	"github.com/kjstillabower/current-weather-service/internal/client"
	"github.com/kjstillabower/current-weather-service/internal/observability"
	"github.com/kjstillabower/current-weather-service/internal/resilience"
	"github.com/kjstillabower/current-weather-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	Location      string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        getenv("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5/weather"),
		Location:      getenv("WEATHER_LOCATION", "Winnipeg,Manitoba"),
		CacheBackend:  getenv("INTEGRATION_CACHE_BACKEND", "in_memory"),
		MemcachedAddr: getenv("MEMCACHED_ADDRS", "localhost:11211"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
	}
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// SetupIntegrationService wires the real client, a short retry pipeline and the configured
// cache backend. A shared backend that does not answer a ping falls back to in-memory.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Store) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	store := newStore(t, cfg)
	pipeline := resilience.New(resilience.Config{
		Schedule: resilience.Schedule{500 * time.Millisecond},
		Timeout:  15 * time.Second,
		Observer: observability.PipelineObserver(logger),
	})
	svc := service.NewWeatherService(weatherClient, store, pipeline,
		service.Config{Location: cfg.Location, Units: "metric", TTL: 5 * time.Minute},
		service.WithLogger(logger),
		service.WithCacheObserver(observability.NewCacheObserver(logger, cfg.CacheBackend)),
	)
	return svc, store
}

func newStore(t *testing.T, cfg IntegrationTestConfig) cache.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(ctx); err == nil {
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	case "redis":
		rs := cache.NewRedisStore(cache.RedisOptions{Addr: cfg.RedisAddr, DialTimeout: time.Second})
		if err := rs.Ping(ctx); err == nil {
			t.Cleanup(func() { _ = rs.Close() })
			t.Logf("Using Redis cache at %s", cfg.RedisAddr)
			return rs
		} else {
			t.Logf("Redis not available (%v), using in-memory cache", err)
		}
	}
	return cache.NewInMemoryStore()
}
