package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RSI is TA-Lib's Wilder RSI. Rows before period are NaN. A row whose
// trailing period price changes are all zero resolves to 100.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	if period < 2 || n <= period {
		return nanSlice(n)
	}
	out := talib.Rsi(closes, period)
	unchanged := 0
	for i := 1; i < n; i++ {
		if closes[i] == closes[i-1] {
			unchanged++
		} else {
			unchanged = 0
		}
		if i >= period && unchanged >= period {
			out[i] = 100
		}
	}
	return maskHead(out, period)
}

// EMA is TA-Lib's SMA-seeded exponential moving average. Rows before period-1 are NaN.
func EMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nanSlice(len(values))
	}
	return maskHead(talib.Ema(values, period), period-1)
}

// SMA is the simple moving average over period rows.
func SMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nanSlice(len(values))
	}
	return maskHead(talib.Sma(values, period), period-1)
}

// TypicalPrice is (high+low+close)/3 per row.
func TypicalPrice(high, low, close []float64) []float64 {
	return talib.TypPrice(high, low, close)
}

// Bands are Bollinger bands of the same length as their input.
type Bands struct {
	Lower, Middle, Upper []float64
}

// Bollinger computes SMA(window) ± k population standard deviations.
func Bollinger(values []float64, window int, k float64) Bands {
	n := len(values)
	if window < 2 || n < window {
		return Bands{Lower: nanSlice(n), Middle: nanSlice(n), Upper: nanSlice(n)}
	}
	mid := SMA(values, window)
	dev := maskHead(talib.StdDev(values, window, k), window-1)

	b := Bands{Lower: make([]float64, n), Middle: mid, Upper: make([]float64, n)}
	for i := range values {
		b.Lower[i] = mid[i] - dev[i]
		b.Upper[i] = mid[i] + dev[i]
	}
	return b
}

// MaskBefore returns a copy of vals with every row before n set to NaN.
func MaskBefore(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	return maskHead(out, n)
}

func maskHead(vals []float64, n int) []float64 {
	if n > len(vals) {
		n = len(vals)
	}
	for i := 0; i < n; i++ {
		vals[i] = math.NaN()
	}
	return vals
}

func nanSlice(n int) []float64 {
	return maskHead(make([]float64, n), n)
}
