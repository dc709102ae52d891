//go:build integration
// +build integration

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/current-weather-service/internal/cache"
	"github.com/kjstillabower/current-weather-service/internal/models"
	"github.com/kjstillabower/current-weather-service/internal/service"
	testhelpers "github.com/kjstillabower/current-weather-service/internal/testhelpers"
)

func setupIntegrationRouter(t *testing.T, limiter *rate.Limiter) (http.Handler, cache.Store) {
	t.Helper()
	cfg := testhelpers.GetIntegrationConfig(t)
	svc, store := testhelpers.SetupIntegrationService(t, cfg)
	return NewRouter(NewHandler(svc, nil, zap.NewNop()), RouterConfig{
		RequestTimeout: 20 * time.Second,
		Limiter:        limiter,
	}), store
}

// TestIntegration_GetWeather_CacheMissThenHit verifies the first request fetches from the
// real API and stores the entry, and the second is served from it.
func TestIntegration_GetWeather_CacheMissThenHit(t *testing.T) {
	router, store := setupIntegrationRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/weather", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, body = %s", w.Code, w.Body.String())
	}
	var first models.WeatherSnapshot
	if err := json.NewDecoder(w.Body).Decode(&first); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(first.Conditions) == 0 || first.Timestamp.IsZero() {
		t.Errorf("snapshot looks empty: %+v", first)
	}

	entry, ok, err := store.Get(context.Background(), service.CacheKey)
	if err != nil || !ok {
		t.Fatalf("store.Get() = ok %v, err %v; want stored entry", ok, err)
	}
	if !entry.Value.Timestamp.Equal(first.Timestamp) {
		t.Errorf("stored timestamp = %v, want %v", entry.Value.Timestamp, first.Timestamp)
	}

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest("GET", "/v1/weather", nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("second request status = %d", w2.Code)
	}
	var second models.WeatherSnapshot
	if err := json.NewDecoder(w2.Body).Decode(&second); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !second.Timestamp.Equal(first.Timestamp) {
		t.Errorf("second response timestamp = %v, want cached %v", second.Timestamp, first.Timestamp)
	}
}

func TestIntegration_GetMetrics_Format(t *testing.T) {
	router, _ := setupIntegrationRouter(t, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/weather", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "weatherApiCallsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	router, _ := setupIntegrationRouter(t, rate.NewLimiter(1, 2))

	var limited int
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/weather", nil))
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Error("expected at least one 429 with burst 2")
	}
}
