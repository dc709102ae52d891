package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/current-weather-service/internal/models"
)

func testEntry(humidity int) Entry {
	return Entry{
		Value:    models.WeatherSnapshot{Humidity: humidity, Conditions: []models.Condition{{Summary: "Clear"}}},
		StoredAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestInMemoryStore_GetSet verifies that Set stores an entry and Get returns it intact.
func TestInMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	want := testEntry(40)
	if err := s.Set(ctx, "current_weather", want, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := s.Get(ctx, "current_weather")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Value.Humidity != 40 || !got.StoredAt.Equal(want.StoredAt) {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

// TestInMemoryStore_Get_Miss verifies that Get returns ok=false for an empty store
// and for a key other than the stored one.
func TestInMemoryStore_Get_Miss(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if _, ok, err := s.Get(ctx, "current_weather"); err != nil || ok {
		t.Errorf("Get() on empty store = (%v, %v), want (false, nil)", ok, err)
	}

	_ = s.Set(ctx, "a", testEntry(1), time.Minute)
	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Error("Get() ok = true for a key that was never set")
	}
}

func TestInMemoryStore_SetReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_ = s.Set(ctx, "k", testEntry(1), time.Minute)
	_ = s.Set(ctx, "k", testEntry(2), time.Minute)

	got, _, _ := s.Get(ctx, "k")
	if got.Value.Humidity != 2 {
		t.Errorf("Get() humidity = %d, want 2", got.Value.Humidity)
	}
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	s := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Set(ctx, "k", testEntry(1), time.Minute); err == nil {
		t.Error("Set() with cancelled context expected error")
	}
	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Error("Get() with cancelled context expected error")
	}
}

// TestInMemoryStore_ConcurrentAccess verifies readers always observe a complete entry
// while writers replace it. Run with -race.
func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.Set(ctx, "k", testEntry(0), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Set(ctx, "k", testEntry(n*100+j), time.Minute)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, ok, _ := s.Get(ctx, "k")
				if !ok || len(got.Value.Conditions) != 1 {
					t.Errorf("Get() observed partial entry: %+v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{0, 0},
		{-time.Second, 0},
		{500 * time.Millisecond, 1},
		{10 * time.Minute, 600},
		{60 * 24 * time.Hour, 30 * 24 * 60 * 60},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" a:1 , ,b:2,")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("parseAddrs() = %v, want [a:1 b:2]", got)
	}
}
