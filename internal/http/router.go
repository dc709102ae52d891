package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/current-weather-service/internal/observability"
)

// RouterConfig configures the middleware applied to the weather routes.
type RouterConfig struct {
	Logger         *zap.Logger
	RequestTimeout time.Duration
	// Limiter is nil when rate limiting is disabled.
	Limiter *rate.Limiter
	Denials DenialRecorder
}

// NewRouter registers every route. The weather routes get rate limiting and the request
// timeout; /health, /metrics and /openapi.yaml only get correlation IDs and metrics.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/openapi.yaml", h.GetOpenAPI).Methods(http.MethodGet)

	limit := RateLimitMiddleware(cfg.Limiter, cfg.Denials)
	weather := func(next http.HandlerFunc) http.Handler {
		if cfg.RequestTimeout > 0 {
			return limit(TimeoutMiddleware(cfg.RequestTimeout)(next))
		}
		return limit(next)
	}
	router.Handle("/weather", weather(h.GetWeather)).Methods(http.MethodGet)
	router.Handle("/v1/weather", weather(h.GetWeather)).Methods(http.MethodGet)
	return router
}
