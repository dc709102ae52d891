package http

import (
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func BenchmarkHandler_GetWeather_Hit(b *testing.B) {
	handler := NewHandler(&stubWeather{snap: sampleSnapshot()}, nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/weather", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.GetWeather(httptest.NewRecorder(), req)
	}
}

func BenchmarkHandler_GetWeather_Error(b *testing.B) {
	handler := NewHandler(&stubWeather{err: errFatalForTest}, nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/weather", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.GetWeather(httptest.NewRecorder(), req)
	}
}

func BenchmarkRouter_Weather_RateLimited(b *testing.B) {
	router := NewRouter(NewHandler(&stubWeather{snap: sampleSnapshot()}, nil, nil), RouterConfig{
		Limiter: rate.NewLimiter(1, 1),
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/weather", nil))
	}
}

func BenchmarkHandler_GetHealth(b *testing.B) {
	handler := NewHandler(&stubWeather{}, &HealthConfig{Outcomes: stubRater{1, 10}, ErrorPct: 50}, zap.NewNop())
	req := httptest.NewRequest("GET", "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.GetHealth(httptest.NewRecorder(), req)
	}
}
