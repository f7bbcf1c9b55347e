package indicators

import (
	"math"
	"testing"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		check  func(float64) bool
	}{
		{"uptrend", ramp(30, 100, 1), func(v float64) bool { return v == 100 }},
		{"downtrend", ramp(30, 100, -1), func(v float64) bool { return v == 0 }},
		{"flat", ramp(20, 50, 0), func(v float64) bool { return v == 50 }},
		{"mixed", []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11}, func(v float64) bool { return v > 40 && v < 60 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSI(tt.closes, RSIPeriod)
			if got == nil {
				t.Fatal("RSI() = nil")
			}
			if !tt.check(*got) {
				t.Errorf("RSI() = %v", *got)
			}
		})
	}
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// Period 2: first average over changes +2, -1; then +1.
	closes := []float64{10, 12, 11, 12}
	got := RSI(closes, 2)
	if got == nil {
		t.Fatal("RSI() = nil")
	}
	avgGain := (1.0*1 + 1) / 2 // (2/2 * 1 + 1) / 2
	avgLoss := (0.5 * 1) / 2
	want := 100 - 100/(1+avgGain/avgLoss)
	if !near(*got, want) {
		t.Errorf("RSI() = %v, want %v", *got, want)
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	if got := RSI(ramp(14, 1, 1), RSIPeriod); got != nil {
		t.Errorf("RSI() = %v, want nil", *got)
	}
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 2)
	if got == nil || *got != 4.5 {
		t.Errorf("SMA() = %v, want 4.5", got)
	}
	if got := SMA([]float64{1, 2}, 3); got != nil {
		t.Errorf("SMA() = %v, want nil", *got)
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	got := ema([]float64{2, 4, 6, 8}, 3)
	if len(got) != 2 {
		t.Fatalf("len(ema) = %d, want 2", len(got))
	}
	if got[0] != 4 {
		t.Errorf("seed = %v, want 4", got[0])
	}
	if !near(got[1], 6) {
		t.Errorf("ema[1] = %v, want 6", got[1])
	}
}

func TestComputeMACD(t *testing.T) {
	if got := ComputeMACD(ramp(33, 100, 1)); got != nil {
		t.Errorf("ComputeMACD() with 33 closes = %+v, want nil", got)
	}

	m := ComputeMACD(ramp(60, 100, 1))
	if m == nil {
		t.Fatal("ComputeMACD() = nil")
	}
	// A steady uptrend keeps the fast average above the slow one.
	if m.Line <= 0 {
		t.Errorf("Line = %v, want > 0", m.Line)
	}
	if !near(m.Histogram, m.Line-m.Signal) {
		t.Errorf("Histogram = %v, want %v", m.Histogram, m.Line-m.Signal)
	}

	flat := ComputeMACD(ramp(40, 100, 0))
	if flat == nil || flat.Line != 0 || flat.Signal != 0 {
		t.Errorf("flat MACD = %+v, want zeros", flat)
	}
}

func TestThresholds(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	if !IsOversold(v(29.9)) || IsOversold(v(30)) || IsOversold(nil) {
		t.Error("IsOversold() boundaries wrong")
	}
	if !IsOverbought(v(70.1)) || IsOverbought(v(70)) || IsOverbought(nil) {
		t.Error("IsOverbought() boundaries wrong")
	}
}
