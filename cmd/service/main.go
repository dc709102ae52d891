package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/current-weather-service/internal/cache"
	"github.com/kjstillabower/current-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/current-weather-service/internal/client"
	"github.com/kjstillabower/current-weather-service/internal/config"
	httphandler "github.com/kjstillabower/current-weather-service/internal/http"
	"github.com/kjstillabower/current-weather-service/internal/lifecycle"
	"github.com/kjstillabower/current-weather-service/internal/observability"
	"github.com/kjstillabower/current-weather-service/internal/resilience"
	"github.com/kjstillabower/current-weather-service/internal/service"
	"github.com/kjstillabower/current-weather-service/internal/traffic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	classify := resilience.StatusClassifier(cfg.TransientStatusCodes)
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			Counts: func(err error) bool {
				return classify(err) == resilience.OutcomeRetryable
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				observability.CircuitBreakerState.WithLabelValues("weather_api").Set(float64(to))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	store, cachePing, cacheCloser := newStore(cfg, logger)

	pipeline := resilience.New(resilience.Config{
		Schedule: cfg.RetryBackoff,
		Timeout:  cfg.FetchTimeout,
		Classify: classify,
		Observer: observability.PipelineObserver(logger),
	})

	outcomes := traffic.NewTracker(cfg.HealthErrorWindow, nil)
	logger.Info("health tracking", zap.Duration("window", outcomes.Window()), zap.Int("error_pct", cfg.HealthErrorPct))
	weatherService := service.NewWeatherService(weatherClient, store, pipeline,
		service.Config{Location: cfg.Location, Units: cfg.Units, TTL: cfg.CacheTTL},
		service.WithCacheObserver(observability.NewCacheObserver(logger, cfg.CacheBackend)),
		service.WithOutcomeRecorder(outcomes),
		service.WithLogger(logger),
	)
	logger.Info("weather service configured",
		zap.String("location", cfg.Location),
		zap.String("units", cfg.Units),
		zap.Duration("ttl", cfg.CacheTTL),
		zap.Durations("retry_backoff", cfg.RetryBackoff),
		zap.Duration("fetch_timeout", cfg.FetchTimeout))

	if cfg.CacheWarmOnStart {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		// Failure is logged by the warmer; the service starts cold.
		_ = cache.NewCacheWarmer(weatherService, logger).Warm(warmCtx)
		warmCancel()
	}

	handler := httphandler.NewHandler(weatherService, &httphandler.HealthConfig{
		Outcomes:  outcomes,
		ErrorPct:  cfg.HealthErrorPct,
		Denials:   outcomes,
		CachePing: cachePing,
		Version:   version,
	}, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		Denials:        outcomes,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// A miss may wait for the whole fetch, so writes get the request timeout plus headroom.
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if cacheCloser != nil {
		if err := cacheCloser.Close(); err != nil {
			logger.Error("cache close", zap.String("backend", cfg.CacheBackend), zap.Error(err))
		}
	}
	logger.Info("shutdown complete", zap.Duration("drain", lifecycle.DrainDuration()))
}

// newStore builds the configured cache backend. Shared backends also return a health ping
// and a closer; in_memory returns neither.
func newStore(cfg *config.Config, logger *zap.Logger) (cache.Store, func(context.Context) error, io.Closer) {
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc.Ping, mc
	case "redis":
		rs := cache.NewRedisStore(cache.RedisOptions{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.RedisDialTimeout,
		})
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return rs, rs.Ping, rs
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryStore(), nil, nil
	}
}
