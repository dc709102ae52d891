package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/current-weather-service/internal/models"
)

// WeatherFetcher is implemented by the service layer. Used by CacheWarmer to avoid a
// circular dependency on the service package.
type WeatherFetcher interface {
	GetWeather(ctx context.Context) (models.WeatherSnapshot, error)
}

// CacheWarmer populates the cache before the server starts accepting traffic.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm runs one coordinator fetch, which stores the snapshot on success.
// A failure is returned for the caller to log; the service still starts cold.
func (w *CacheWarmer) Warm(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("warming cache")

	_, err := w.fetcher.GetWeather(ctx)
	duration := time.Since(start)
	if err != nil {
		w.logger.Warn("cache warming failed", zap.Duration("duration", duration), zap.Error(err))
		return fmt.Errorf("cache warming: %w", err)
	}
	w.logger.Info("cache warming complete", zap.Duration("duration", duration))
	return nil
}
