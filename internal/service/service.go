package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/current-weather-service/internal/cache"
	"github.com/kjstillabower/current-weather-service/internal/client"
	"github.com/kjstillabower/current-weather-service/internal/models"
	"github.com/kjstillabower/current-weather-service/internal/observability"
	"github.com/kjstillabower/current-weather-service/internal/resilience"
)

// CacheKey is the single key the coordinator reads and writes.
const CacheKey = "current_weather"

// CacheObserver receives cache events. Implementations must not block; panics are recovered.
type CacheObserver interface {
	Hit(ctx context.Context, key string)
	Miss(ctx context.Context, key string)
	Stored(ctx context.Context, key string)
	GetFailed(ctx context.Context, key string, err error)
	PutFailed(ctx context.Context, key string, err error)
}

// OutcomeRecorder receives the result of every refresh. Used by health reporting.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Config is the static per-run configuration of the coordinator.
type Config struct {
	Location string
	Units    string
	TTL      time.Duration
}

// Option customizes a WeatherService.
type Option func(*WeatherService)

// WithClock sets the clock used for StoredAt and freshness. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *WeatherService) { s.clock = c }
}

// WithCacheObserver sets the cache event observer.
func WithCacheObserver(o CacheObserver) Option {
	return func(s *WeatherService) { s.observer = o }
}

// WithOutcomeRecorder sets where refresh outcomes are recorded.
func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(s *WeatherService) { s.outcomes = r }
}

// WithLogger sets the fallback logger used when the request context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(s *WeatherService) { s.logger = l }
}

// WeatherService serves the current weather using cache-aside with a single entry.
// Fresh entries are returned without touching the network. On a miss one refresh runs
// through the resilience pipeline no matter how many callers are waiting, and its value
// or error is shared by all of them. A failed refresh leaves the old entry in place and
// does not serve it.
type WeatherService struct {
	client   client.WeatherClient
	store    cache.Store
	pipeline *resilience.Pipeline
	cfg      Config

	clock    clockwork.Clock
	observer CacheObserver
	outcomes OutcomeRecorder
	logger   *zap.Logger

	flight singleflight.Group
}

// NewWeatherService wires the coordinator. cfg.TTL must be positive.
func NewWeatherService(c client.WeatherClient, store cache.Store, pipeline *resilience.Pipeline, cfg Config, opts ...Option) *WeatherService {
	s := &WeatherService{
		client:   c,
		store:    store,
		pipeline: pipeline,
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetWeather returns the cached snapshot when fresh, otherwise refreshes it.
// Refresh errors wrap resilience.ErrFatal, ErrRetryExhausted or ErrTimedOut.
// If ctx ends while waiting, GetWeather returns early with ctx's error; the refresh
// itself keeps running until the pipeline finishes and its result is still stored.
func (s *WeatherService) GetWeather(ctx context.Context) (models.WeatherSnapshot, error) {
	if snap, ok := s.lookup(ctx, true); ok {
		return snap, nil
	}

	ch := s.flight.DoChan(CacheKey, func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.WeatherSnapshot{}, res.Err
		}
		return res.Val.(models.WeatherSnapshot), nil
	case <-ctx.Done():
		return models.WeatherSnapshot{}, fmt.Errorf("waiting for weather refresh: %w", ctx.Err())
	}
}

// lookup returns the stored snapshot when it is younger than the TTL. A store error is a miss.
func (s *WeatherService) lookup(ctx context.Context, report bool) (models.WeatherSnapshot, bool) {
	entry, ok, err := s.store.Get(ctx, CacheKey)
	switch {
	case err != nil:
		// A caller that already went away is not a backend failure.
		gone := ctx.Err() != nil && errors.Is(err, ctx.Err())
		if report && !gone {
			s.notify(func(o CacheObserver) { o.GetFailed(ctx, CacheKey, err) })
		}
		return models.WeatherSnapshot{}, false
	case !ok || !s.fresh(entry):
		if report {
			s.notify(func(o CacheObserver) { o.Miss(ctx, CacheKey) })
		}
		return models.WeatherSnapshot{}, false
	}
	if report {
		s.notify(func(o CacheObserver) { o.Hit(ctx, CacheKey) })
	}
	return entry.Value, true
}

func (s *WeatherService) fresh(e cache.Entry) bool {
	return s.clock.Since(e.StoredAt) < s.cfg.TTL
}

// refresh runs once per flight. It re-checks the store first so a caller that missed just
// before the previous flight stored does not trigger a second fetch.
func (s *WeatherService) refresh(ctx context.Context) (models.WeatherSnapshot, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	if snap, ok := s.lookup(ctx, false); ok {
		return snap, nil
	}

	start := s.clock.Now()
	snap, err := resilience.Execute(ctx, s.pipeline, func(ctx context.Context) (models.WeatherSnapshot, error) {
		payload, err := s.client.GetCurrent(ctx, s.cfg.Location, s.cfg.Units)
		if err != nil {
			return models.WeatherSnapshot{}, err
		}
		return client.ToSnapshot(payload, s.cfg.Units)
	})
	if err != nil {
		s.record(false)
		logger.Error("weather refresh failed",
			zap.String("category", string(client.CategorizeError(err))),
			zap.Duration("duration", s.clock.Since(start)),
			zap.Error(err))
		return models.WeatherSnapshot{}, fmt.Errorf("refresh current weather: %w", err)
	}
	s.record(true)

	entry := cache.Entry{Value: snap, StoredAt: s.clock.Now()}
	if err := s.store.Set(ctx, CacheKey, entry, s.cfg.TTL); err != nil {
		s.notify(func(o CacheObserver) { o.PutFailed(ctx, CacheKey, err) })
	} else {
		s.notify(func(o CacheObserver) { o.Stored(ctx, CacheKey) })
	}
	logger.Debug("weather refreshed", zap.Duration("duration", s.clock.Since(start)))
	return snap, nil
}

func (s *WeatherService) record(ok bool) {
	if s.outcomes == nil {
		return
	}
	if ok {
		s.outcomes.RecordSuccess()
	} else {
		s.outcomes.RecordError()
	}
}

func (s *WeatherService) notify(fn func(CacheObserver)) {
	if s.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("cache observer panicked", zap.Any("panic", r))
		}
	}()
	fn(s.observer)
}
