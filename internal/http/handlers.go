package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/current-weather-service/internal/lifecycle"
	"github.com/kjstillabower/current-weather-service/internal/models"
	"github.com/kjstillabower/current-weather-service/internal/observability"
	"github.com/kjstillabower/current-weather-service/internal/resilience"
)

//go:embed openapi.yaml
var openAPISpec []byte

// WeatherGetter returns the current weather for the configured location.
type WeatherGetter interface {
	GetWeather(ctx context.Context) (models.WeatherSnapshot, error)
}

// ErrorRater reports refresh errors and total refreshes within its window.
type ErrorRater interface {
	ErrorRate() (errors, total int)
}

// DenialCounter reports rate limit denials within its window.
type DenialCounter interface {
	DenialCount() int
}

// HealthConfig holds the inputs of the health handler. A nil HealthConfig only reports shutdown.
type HealthConfig struct {
	// Outcomes, when set, is compared against ErrorPct to report degraded.
	Outcomes ErrorRater
	ErrorPct int
	// Denials, when set, is reported as rateLimitDenials. It does not affect status.
	Denials DenialCounter
	// CachePing, when set, is called to check cache reachability. Used for memcached and redis.
	CachePing func(ctx context.Context) error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherGetter
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(weather WeatherGetter, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weather,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetWeather handles GET /weather and GET /v1/weather.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	snap, err := h.weather.GetWeather(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetOpenAPI handles GET /openapi.yaml.
func (h *Handler) GetOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "current-weather-service",
		"version":   version,
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && h.healthConfig.Denials != nil {
		resp["rateLimitDenials"] = h.healthConfig.Denials.DenialCount()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > cache unreachable > refresh error rate breach > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{}
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}

	cacheOK := true
	if h.healthConfig.CachePing != nil {
		cacheOK = h.healthConfig.CachePing(ctx) == nil
		checks["cache"] = checkValue(cacheOK)
	}

	upstreamOK := true
	if h.healthConfig.Outcomes != nil && h.healthConfig.ErrorPct > 0 {
		errs, total := h.healthConfig.Outcomes.ErrorRate()
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.healthConfig.ErrorPct) {
			upstreamOK = false
		}
		checks["weatherApi"] = checkValue(upstreamOK)
	}

	switch {
	case !cacheOK:
		return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable", checks}
	case !upstreamOK:
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

func checkValue(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError maps a coordinator error to its HTTP response.
// ErrTimedOut is checked first since it also wraps context.DeadlineExceeded.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)
	switch {
	case errors.Is(err, resilience.ErrTimedOut):
		writeError(w, r, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Timed out fetching weather data")
	case errors.Is(err, resilience.ErrFatal):
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_INVALID", "Weather provider returned an unusable response")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	}
	logger.Debug("upstream error", zap.Error(err))
}
