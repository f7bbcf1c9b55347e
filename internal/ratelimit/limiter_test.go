package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestUnlimited_NeverBlocks(t *testing.T) {
	l := Unlimited()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx, APIYahoo); err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
	}
}

func TestWait_BurstOfOne(t *testing.T) {
	l := New(map[API]float64{APINasdaq: 0.001})

	if err := l.Wait(context.Background(), APINasdaq); err != nil {
		t.Fatalf("first Wait() returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, APINasdaq); err == nil {
		t.Error("second Wait() = nil, want error after burst of 1")
	}
}

func TestSet_ZeroRateIsUnlimited(t *testing.T) {
	l := New(map[API]float64{APIYahoo: 0.001})
	l.Set(APIYahoo, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		if err := l.Wait(ctx, APIYahoo); err != nil {
			t.Fatalf("Wait() returned error: %v", err)
		}
	}
}

func TestWait_UnknownAPI(t *testing.T) {
	l := New(nil)

	if err := l.Wait(context.Background(), API("other")); err != nil {
		t.Errorf("Wait() for unknown API returned %v", err)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(map[API]float64{APIYahoo: 0.001})
	if err := l.Wait(context.Background(), APIYahoo); err != nil { // spend the burst
		t.Fatalf("Wait() returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, APIYahoo); err == nil {
		t.Error("Wait() expected error once context expires")
	}
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background(), APIYahoo); err != nil {
		t.Errorf("nil Wait() = %v", err)
	}
}
