package observability

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/current-weather-service/internal/resilience"
)

// PipelineObserver logs resilience pipeline events on the request logger and feeds
// the retry and outcome metrics.
func PipelineObserver(base *zap.Logger) resilience.Observer {
	return func(ctx context.Context, ev resilience.Event) {
		logger := LoggerFromContext(ctx, base)
		fields := []zap.Field{
			zap.Int("attempt", ev.Attempt),
			zap.Duration("elapsed", ev.Elapsed),
		}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}

		switch ev.Kind {
		case resilience.EventAttempt:
			logger.Debug("upstream attempt", fields...)
		case resilience.EventRetry:
			WeatherAPIRetriesTotal.Inc()
			logger.Warn("upstream attempt failed, retrying", append(fields, zap.Duration("backoff", ev.Delay))...)
		case resilience.EventSuccess:
			FetchOutcomesTotal.WithLabelValues(ev.Kind.String()).Inc()
			logger.Debug("upstream fetch succeeded", fields...)
		case resilience.EventFatal, resilience.EventExhausted, resilience.EventTimeout:
			FetchOutcomesTotal.WithLabelValues(ev.Kind.String()).Inc()
			logger.Error("upstream fetch failed", append(fields, zap.String("outcome", ev.Kind.String()))...)
		}
	}
}

// CacheObserver logs and counts cache events for one backend.
type CacheObserver struct {
	base    *zap.Logger
	backend string
}

// NewCacheObserver returns a CacheObserver labelled with backend (in_memory, memcached, redis).
func NewCacheObserver(base *zap.Logger, backend string) *CacheObserver {
	return &CacheObserver{base: base, backend: backend}
}

func (o *CacheObserver) Hit(ctx context.Context, key string) {
	CacheHitsTotal.WithLabelValues(o.backend).Inc()
	LoggerFromContext(ctx, o.base).Debug("cache hit", zap.String("key", key))
}

func (o *CacheObserver) Miss(ctx context.Context, key string) {
	CacheMissesTotal.WithLabelValues(o.backend).Inc()
	LoggerFromContext(ctx, o.base).Debug("cache miss", zap.String("key", key))
}

func (o *CacheObserver) Stored(ctx context.Context, key string) {
	CacheWritesTotal.WithLabelValues(o.backend).Inc()
	LoggerFromContext(ctx, o.base).Debug("cache stored", zap.String("key", key))
}

func (o *CacheObserver) GetFailed(ctx context.Context, key string, err error) {
	CacheErrorsTotal.WithLabelValues(o.backend, "get").Inc()
	LoggerFromContext(ctx, o.base).Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
}

func (o *CacheObserver) PutFailed(ctx context.Context, key string, err error) {
	CacheErrorsTotal.WithLabelValues(o.backend, "set").Inc()
	LoggerFromContext(ctx, o.base).Error("cache set failed", zap.String("key", key), zap.Error(err))
}
