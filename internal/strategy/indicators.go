package strategy

import "github.com/markcheno/go-talib"

// SMA is the simple moving average of values over n. Positions before the
// first full window hold the mean of the values seen so far.
func SMA(values []float64, n int) []float64 {
	return withWarmup(values, n, talib.Sma)
}

// EMA is the exponential moving average of values over n, seeded with the
// SMA of the first window. Positions before the first full window hold the
// mean of the values seen so far.
func EMA(values []float64, n int) []float64 {
	return withWarmup(values, n, talib.Ema)
}

func withWarmup(values []float64, n int, full func([]float64, int) []float64) []float64 {
	if n <= 1 {
		return append([]float64(nil), values...)
	}
	out := expandingMean(values)
	if len(values) < n {
		return out
	}
	// talib leaves the first n-1 positions at zero
	computed := full(values, n)
	copy(out[n-1:], computed[n-1:])
	return out
}

func expandingMean(values []float64) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		out[i] = sum / float64(i+1)
	}
	return out
}
