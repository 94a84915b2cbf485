package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWaitFirstCallImmediate(t *testing.T) {
	limiter := New(map[Category]time.Duration{CategoryDefault: time.Second}, nil)

	start := time.Now()
	if err := limiter.Wait(context.Background(), CategoryDefault); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("first call should not block, took %v", elapsed)
	}
}

func TestWaitEnforcesSpacing(t *testing.T) {
	interval := 150 * time.Millisecond
	limiter := New(map[Category]time.Duration{
		CategoryTTS:     interval,
		CategoryDefault: time.Second,
	}, nil)

	ctx := context.Background()
	if err := limiter.Wait(ctx, CategoryTTS); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx, CategoryTTS); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < interval {
		t.Errorf("consecutive tts calls spaced %v, want at least %v", elapsed, interval)
	}
}

func TestWaitCategoriesIndependent(t *testing.T) {
	limiter := New(map[Category]time.Duration{
		CategoryLipSync: time.Second,
		CategoryDefault: time.Millisecond,
	}, nil)

	ctx := context.Background()
	if err := limiter.Wait(ctx, CategoryLipSync); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx, CategoryDefault); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("default category should not inherit lip_sync spacing, waited %v", elapsed)
	}
}

func TestWaitUnknownCategoryUsesDefault(t *testing.T) {
	limiter := New(map[Category]time.Duration{CategoryDefault: 100 * time.Millisecond}, nil)

	ctx := context.Background()
	if err := limiter.Wait(ctx, Category("mystery")); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx, Category("mystery")); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("unknown category spaced %v, want at least default interval", elapsed)
	}
}

func TestWaitSerializesOverlappingCallers(t *testing.T) {
	interval := 60 * time.Millisecond
	limiter := New(map[Category]time.Duration{
		CategoryTTS:     interval,
		CategoryDefault: time.Second,
	}, nil)

	const callers = 3
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(context.Background(), CategoryTTS); err != nil {
				t.Errorf("Wait: %v", err)
			}
		}()
	}
	wg.Wait()

	want := time.Duration(callers-1) * interval
	if elapsed := time.Since(start); elapsed < want {
		t.Errorf("%d overlapping callers finished in %v, want at least %v", callers, elapsed, want)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	limiter := New(map[Category]time.Duration{CategoryDefault: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := limiter.Wait(ctx, CategoryDefault); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- limiter.Wait(ctx, CategoryDefault) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}

func TestNilLimiterIsNoop(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Wait(context.Background(), CategoryTTS); err != nil {
		t.Fatalf("nil limiter Wait: %v", err)
	}
}
