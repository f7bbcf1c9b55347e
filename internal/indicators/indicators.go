// Package indicators computes technical indicators over a series of daily
// closes ordered oldest first. Every function returns nil when the series is
// too short to produce a value.
package indicators

const (
	RSIPeriod     = 14
	OversoldRSI   = 30.0
	OverboughtRSI = 70.0

	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// MACD holds the moving average convergence divergence of a series.
type MACD struct {
	Line      float64 `json:"macd_line" bson:"macd_line"`
	Signal    float64 `json:"signal_line" bson:"signal_line"`
	Histogram float64 `json:"histogram" bson:"histogram"`
}

// RSI returns the relative strength index over period using Wilder's
// smoothing: the first average is a plain mean of the first period changes
// and each later change is folded in with weight 1/period.
func RSI(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := change(closes[i-1], closes[i])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := change(closes[i-1], closes[i])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	var rsi float64
	switch {
	case avgLoss == 0 && avgGain == 0:
		rsi = 50
	case avgLoss == 0:
		rsi = 100
	default:
		rs := avgGain / avgLoss
		rsi = 100 - 100/(1+rs)
	}
	return &rsi
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

// SMA returns the mean of the last period closes.
func SMA(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period {
		return nil
	}
	var sum float64
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	avg := sum / float64(period)
	return &avg
}

// ema returns the exponential moving average series of values, seeded with
// the simple mean of the first period values. Element i corresponds to
// values[i+period-1].
func ema(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nil
	}
	k := 2 / float64(period+1)

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed/float64(period))
	for _, v := range values[period:] {
		prev := out[len(out)-1]
		out = append(out, (v-prev)*k+prev)
	}
	return out
}

// ComputeMACD returns MACD(12, 26, 9). The signal line is the 9-period EMA of
// the MACD line, so at least 34 closes are required.
func ComputeMACD(closes []float64) *MACD {
	if len(closes) < macdSlow+macdSignal-1 {
		return nil
	}

	fast := ema(closes, macdFast)
	slow := ema(closes, macdSlow)

	// Align fast with slow: both end at the last close.
	offset := len(fast) - len(slow)
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}

	signal := ema(line, macdSignal)
	m := &MACD{
		Line:   line[len(line)-1],
		Signal: signal[len(signal)-1],
	}
	m.Histogram = m.Line - m.Signal
	return m
}

// IsOversold reports whether rsi is below the oversold threshold.
func IsOversold(rsi *float64) bool {
	return rsi != nil && *rsi < OversoldRSI
}

// IsOverbought reports whether rsi is above the overbought threshold.
func IsOverbought(rsi *float64) bool {
	return rsi != nil && *rsi > OverboughtRSI
}
