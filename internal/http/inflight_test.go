package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	var tracker InFlightTracker
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment()
		}()
	}
	wg.Wait()
	if got := tracker.Count(); got != 50 {
		t.Fatalf("Count() = %d, want 50", got)
	}
	for i := 0; i < 50; i++ {
		tracker.Decrement()
	}
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestInFlightTracker_WaitForZero_Cancelled(t *testing.T) {
	var tracker InFlightTracker
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tracker.WaitForZero(ctx, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForZero() error = %v, want context.Canceled", err)
	}
}

// TestWaitForInFlight_DrainsMiddlewareRequests verifies a request still inside
// MetricsMiddleware holds shutdown until its handler returns.
func TestWaitForInFlight_DrainsMiddlewareRequests(t *testing.T) {
	before := InFlightCount()
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	served := make(chan struct{})
	go func() {
		defer close(served)
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/weather", nil))
	}()
	<-entered

	if got := InFlightCount(); got != before+1 {
		t.Fatalf("InFlightCount() = %d, want %d", got, before+1)
	}
	if before == 0 {
		short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := WaitForInFlight(short, time.Millisecond)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("WaitForInFlight() with a live request = %v, want deadline exceeded", err)
		}
	}

	close(release)
	<-served
	if got := InFlightCount(); got != before {
		t.Errorf("InFlightCount() after request = %d, want %d", got, before)
	}
	if before == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := WaitForInFlight(ctx, time.Millisecond); err != nil {
			t.Errorf("WaitForInFlight() after drain = %v, want nil", err)
		}
	}
}
