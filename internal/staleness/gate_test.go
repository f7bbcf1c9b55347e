package staleness

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLookup map[string]time.Time

func (f fakeLookup) LastAnalyzed(_ context.Context, symbol string) (time.Time, bool, error) {
	if symbol == "BROKEN" {
		return time.Time{}, false, errors.New("store unavailable")
	}
	at, ok := f[symbol]
	return at, ok, nil
}

func TestShouldRefresh(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	interval := time.Hour
	lookup := fakeLookup{
		"FRESH":    now.Add(-interval + time.Second),
		"STALE":    now.Add(-interval - time.Second),
		"BOUNDARY": now.Add(-interval),
	}
	g := NewGate(lookup, interval, nil)

	tests := []struct {
		symbol   string
		wantSkip bool
	}{
		{"FRESH", true},
		{"STALE", false},
		{"BOUNDARY", false},
		{"NEVER", false},
		{"BROKEN", false},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			d := g.ShouldRefresh(context.Background(), tt.symbol, now)
			if d.Skip != tt.wantSkip {
				t.Errorf("Skip = %v, want %v", d.Skip, tt.wantSkip)
			}
			if d.Skip && (d.Reason == "" || !d.LastRefreshedAt.Equal(lookup[tt.symbol])) {
				t.Errorf("Decision = %+v, want reason and timestamp", d)
			}
		})
	}
}

func TestPartition(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	g := NewGate(fakeLookup{"B": now.Add(-time.Minute)}, time.Hour, nil)

	due, skipped := g.Partition(context.Background(), []string{"A", "B", "C"}, now)

	if len(due) != 2 || due[0] != "A" || due[1] != "C" {
		t.Errorf("due = %v, want [A C]", due)
	}
	if len(skipped) != 1 || skipped[0] != "B" {
		t.Errorf("skipped = %v, want [B]", skipped)
	}
}

func TestPartition_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	due, skipped := NewGate(fakeLookup{}, time.Hour, nil).Partition(ctx, []string{"A", "B"}, time.Now())
	if len(due)+len(skipped) != 0 {
		t.Errorf("Partition() after cancel = %v, %v, want nothing", due, skipped)
	}
}

func TestNewGate_DefaultInterval(t *testing.T) {
	if got := NewGate(fakeLookup{}, 0, nil).Interval(); got != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", got, DefaultInterval)
	}
}
