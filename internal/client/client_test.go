package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/current-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/current-weather-service/internal/observability"
	"github.com/kjstillabower/current-weather-service/internal/resilience"
)

const sampleResponse = `{
	"coord": {"lon": -122.33, "lat": 47.61},
	"weather": [{"id": 802, "main": "Clouds", "description": "scattered clouds", "icon": "03d"}],
	"main": {"temp": 15.5, "feels_like": 14.9, "temp_min": 13.2, "temp_max": 17.1, "pressure": 1016, "humidity": 65},
	"visibility": 10000,
	"wind": {"speed": 5, "deg": 240, "gust": 7.5},
	"clouds": {"all": 40},
	"rain": {"1h": 0.25},
	"dt": 1700000000,
	"sys": {"country": "US", "sunrise": 1699975000, "sunset": 1700010000},
	"name": "Seattle"
}`

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{
			name:    "empty API key",
			apiKey:  "",
			wantErr: ErrInvalidAPIKey,
		},
		{
			name:    "too short API key",
			apiKey:  "short",
			wantErr: ErrInvalidAPIKey,
		},
		{
			name:    "valid API key",
			apiKey:  "valid-api-key-12345",
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() unexpected error: %v", err)
			}
			if client == nil {
				t.Fatalf("NewOpenWeatherClient() expected client, got nil")
			}
		})
	}
}

func TestOpenWeatherClient_GetCurrent_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("q") != "Seattle,US" {
			t.Errorf("q = %q, want Seattle,US", q.Get("q"))
		}
		if q.Get("appid") != "test-api-key-12345" {
			t.Errorf("expected API key in query")
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		if got := r.Header.Get("X-Correlation-ID"); got != "corr-1" {
			t.Errorf("X-Correlation-ID = %q, want corr-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	client, err := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	ctx := observability.WithCorrelationID(context.Background(), "corr-1")
	got, err := client.GetCurrent(ctx, "Seattle,US", "metric")
	if err != nil {
		t.Fatalf("GetCurrent() error = %v", err)
	}
	if got.Name != "Seattle" {
		t.Errorf("Name = %q, want Seattle", got.Name)
	}
	if got.Main == nil || got.Main.Temp != 15.5 {
		t.Errorf("Main.Temp = %+v, want 15.5", got.Main)
	}
	if got.Rain == nil || got.Rain.OneHour != 0.25 {
		t.Errorf("Rain = %+v, want 1h=0.25", got.Rain)
	}
}

func TestOpenWeatherClient_GetCurrent_StatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusUnauthorized, ErrInvalidAPIKey},
		{http.StatusNotFound, ErrLocationNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusRequestTimeout, ErrUpstreamFailure},
		{http.StatusInternalServerError, ErrUpstreamFailure},
		{http.StatusServiceUnavailable, ErrUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"cod":"error","message":"nope"}`))
			}))
			defer server.Close()

			client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)
			_, err := client.GetCurrent(context.Background(), "seattle", "metric")

			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("GetCurrent() error = %v, want *FetchError", err)
			}
			if fe.Kind != KindStatus || fe.StatusCode() != tt.status {
				t.Errorf("FetchError = {%s %d}, want {status %d}", fe.Kind, fe.StatusCode(), tt.status)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("GetCurrent() error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestOpenWeatherClient_GetCurrent_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"main": {"temp": `))
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 2*time.Second)
	_, err := client.GetCurrent(context.Background(), "seattle", "metric")

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindDecode {
		t.Fatalf("GetCurrent() error = %v, want decode FetchError", err)
	}
	if fe.Transient() {
		t.Error("decode errors must not be transient")
	}
}

func TestOpenWeatherClient_GetCurrent_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, 50*time.Millisecond)
	_, err := client.GetCurrent(context.Background(), "seattle", "metric")

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTimeout {
		t.Fatalf("GetCurrent() error = %v, want timeout FetchError", err)
	}
	if !fe.Transient() {
		t.Error("timeouts must be transient")
	}
}

func TestOpenWeatherClient_GetCurrent_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", url, time.Second)
	_, err := client.GetCurrent(context.Background(), "seattle", "metric")

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTransport {
		t.Fatalf("GetCurrent() error = %v, want transport FetchError", err)
	}
	if fe.StatusCode() != 0 {
		t.Errorf("StatusCode() = %d, want 0 for transport errors", fe.StatusCode())
	}
}

func TestOpenWeatherClient_GetCurrent_CircuitOpen(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewOpenWeatherClient("test-api-key-12345", server.URL, time.Second)
	client.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		Component:        "weather_api",
	}))

	_, _ = client.GetCurrent(context.Background(), "seattle", "metric")
	_, err := client.GetCurrent(context.Background(), "seattle", "metric")

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindCircuitOpen {
		t.Fatalf("GetCurrent() error = %v, want circuit-open FetchError", err)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", hits.Load())
	}
}

// TestFetchError_Classification verifies how the default pipeline classifier treats client errors.
func TestFetchError_Classification(t *testing.T) {
	classify := resilience.StatusClassifier(nil)
	tests := []struct {
		name string
		err  error
		want resilience.Outcome
	}{
		{"503", statusError(503), resilience.OutcomeRetryable},
		{"408", statusError(408), resilience.OutcomeRetryable},
		{"404", statusError(404), resilience.OutcomeFatal},
		{"401", statusError(401), resilience.OutcomeFatal},
		{"timeout", &FetchError{Kind: KindTimeout, Err: context.DeadlineExceeded}, resilience.OutcomeRetryable},
		{"transport", &FetchError{Kind: KindTransport, Err: errors.New("reset")}, resilience.OutcomeRetryable},
		{"circuit open", &FetchError{Kind: KindCircuitOpen, Err: circuitbreaker.ErrOpen}, resilience.OutcomeRetryable},
		{"decode", &FetchError{Kind: KindDecode, Err: errors.New("eof")}, resilience.OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBuildRequest_KeepsExistingQuery(t *testing.T) {
	client, _ := NewOpenWeatherClient("test-api-key-12345", "https://api.test.com/data/2.5/weather?lang=en", time.Second)
	req, err := client.buildRequest(context.Background(), "Oslo", "")
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}
	q := req.URL.Query()
	if q.Get("lang") != "en" || q.Get("q") != "Oslo" {
		t.Errorf("query = %s, want lang and q preserved", req.URL.RawQuery)
	}
	if strings.Contains(req.URL.RawQuery, "units=") {
		t.Errorf("query = %s, want no units param when units is empty", req.URL.RawQuery)
	}
}
