package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"

	"emacross-core/internal/candles"
)

func frameFromCloses(closes []float64) dataframe.DataFrame {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cs := make([]candles.Candle, len(closes))
	for i, c := range closes {
		cs[i] = candles.Candle{
			Time:   start.Add(time.Duration(i) * 5 * time.Minute),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1,
		}
	}
	return candles.NewFrame(cs)
}

func zigzag(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + 5*math.Sin(float64(i)/3) + float64(i%4)
	}
	return out
}

func column(t *testing.T, df dataframe.DataFrame, name string) []float64 {
	t.Helper()
	vals, err := candles.Floats(df, name)
	if err != nil {
		t.Fatalf("column %s: %v", name, err)
	}
	return vals
}

func TestEMASeededWithSMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Fatalf("expected NaN look-back, got %v", got)
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if math.Abs(got[i+2]-w) > 1e-9 {
			t.Fatalf("ema[%d]=%v, expected %v", i+2, got[i+2], w)
		}
	}
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 20)
	down := make([]float64, 20)
	for i := range up {
		up[i] = float64(i + 1)
		down[i] = float64(100 - i)
	}

	rUp := RSI(up, 14)
	rDown := RSI(down, 14)
	for i := 0; i < 14; i++ {
		if !math.IsNaN(rUp[i]) {
			t.Fatalf("expected NaN at %d, got %v", i, rUp[i])
		}
	}
	for i := 14; i < 20; i++ {
		if math.Abs(rUp[i]-100) > 1e-9 {
			t.Fatalf("rising rsi[%d]=%v, expected 100", i, rUp[i])
		}
		if math.Abs(rDown[i]) > 1e-9 {
			t.Fatalf("falling rsi[%d]=%v, expected 0", i, rDown[i])
		}
	}
}

func TestRSIFlatWindowIsHundred(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 42
	}
	r := RSI(flat, 14)
	for i := 14; i < 20; i++ {
		if r[i] != 100 {
			t.Fatalf("rsi[%d]=%v, expected 100", i, r[i])
		}
	}
}

func TestRSIFlatAfterMoveIsHundred(t *testing.T) {
	closes := make([]float64, 500)
	for i := range closes {
		switch {
		case i >= 10:
			closes[i] = 100
		case i%2 == 0:
			closes[i] = 99
		default:
			closes[i] = 101
		}
	}
	r := RSI(closes, 14)
	// Row 24 is the first whose 14 trailing changes are all zero.
	if r[23] == 100 {
		t.Fatalf("rsi[23]=%v still covers a move", r[23])
	}
	for i := 24; i < len(closes); i++ {
		if r[i] != 100 {
			t.Fatalf("rsi[%d]=%v, expected 100", i, r[i])
		}
	}

	// A move after the flat run ends the override.
	closes = append(closes, 90)
	if r := RSI(closes, 14); r[500] == 100 {
		t.Fatalf("rsi after a drop = %v", r[500])
	}
}

func TestShortInputIsAllNaN(t *testing.T) {
	vals := []float64{1, 2, 3}
	for name, out := range map[string][]float64{
		"rsi":   RSI(vals, 14),
		"ema":   EMA(vals, 5),
		"sma":   SMA(vals, 20),
		"lower": Bollinger(vals, 20, 2).Lower,
	} {
		if len(out) != len(vals) {
			t.Fatalf("%s: length %d, expected %d", name, len(out), len(vals))
		}
		for i, v := range out {
			if !math.IsNaN(v) {
				t.Fatalf("%s[%d]=%v, expected NaN", name, i, v)
			}
		}
	}
}

func TestPopulateWarmupIsNaN(t *testing.T) {
	df, err := Populate(frameFromCloses(zigzag(40)), DefaultParams())
	if err != nil {
		t.Fatalf("Populate returned error: %v", err)
	}
	if df.Nrow() != 40 {
		t.Fatalf("expected 40 rows, got %d", df.Nrow())
	}
	for _, name := range Columns {
		vals := column(t, df, name)
		for i, v := range vals {
			if i < 30 && !math.IsNaN(v) {
				t.Fatalf("%s[%d]=%v, expected NaN before warm-up", name, i, v)
			}
			if i >= 30 && math.IsNaN(v) {
				t.Fatalf("%s[%d] undefined after warm-up", name, i)
			}
		}
	}
}

func TestPopulateInvariants(t *testing.T) {
	p := DefaultParams()
	p.Warmup = 0
	df, err := Populate(frameFromCloses(zigzag(120)), p)
	if err != nil {
		t.Fatalf("Populate returned error: %v", err)
	}
	rsi := column(t, df, ColRSI)
	lower := column(t, df, ColBBLower)
	mid := column(t, df, ColBBMid)
	upper := column(t, df, ColBBUpper)

	for i := range rsi {
		if !math.IsNaN(rsi[i]) && (rsi[i] < 0 || rsi[i] > 100) {
			t.Fatalf("rsi[%d]=%v outside [0,100]", i, rsi[i])
		}
		if math.IsNaN(mid[i]) {
			continue
		}
		if lower[i] > mid[i] || mid[i] > upper[i] {
			t.Fatalf("band order broken at %d: %v %v %v", i, lower[i], mid[i], upper[i])
		}
	}
}

func TestPopulateConstantCloseCollapsesBands(t *testing.T) {
	closes := make([]float64, 45)
	for i := range closes {
		closes[i] = 100
	}
	df, err := Populate(frameFromCloses(closes), DefaultParams())
	if err != nil {
		t.Fatalf("Populate returned error: %v", err)
	}
	lower := column(t, df, ColBBLower)
	mid := column(t, df, ColBBMid)
	upper := column(t, df, ColBBUpper)
	rsi := column(t, df, ColRSI)
	for i := 30; i < len(closes); i++ {
		if lower[i] != mid[i] || mid[i] != upper[i] {
			t.Fatalf("row %d: bands %v/%v/%v, expected equal", i, lower[i], mid[i], upper[i])
		}
		if rsi[i] != 100 {
			t.Fatalf("row %d: rsi %v, expected 100", i, rsi[i])
		}
	}
}

func TestPopulateIdempotent(t *testing.T) {
	in := frameFromCloses(zigzag(80))
	first, err := Populate(in, DefaultParams())
	if err != nil {
		t.Fatalf("first Populate: %v", err)
	}
	second, err := Populate(in, DefaultParams())
	if err != nil {
		t.Fatalf("second Populate: %v", err)
	}
	again, err := Populate(first, DefaultParams())
	if err != nil {
		t.Fatalf("Populate on populated frame: %v", err)
	}
	if again.Ncol() != first.Ncol() {
		t.Fatalf("re-populating added columns: %d vs %d", again.Ncol(), first.Ncol())
	}

	for _, name := range Columns {
		a, b, c := column(t, first, name), column(t, second, name), column(t, again, name)
		for i := range a {
			if !sameFloat(a[i], b[i]) || !sameFloat(a[i], c[i]) {
				t.Fatalf("%s[%d] differs: %v %v %v", name, i, a[i], b[i], c[i])
			}
		}
	}
	if candles.HasColumn(in, ColRSI) {
		t.Fatalf("input frame was modified")
	}
}

func TestPopulateRejectsMissingColumns(t *testing.T) {
	df := frameFromCloses(zigzag(40)).Drop(candles.ColHigh)
	if _, err := Populate(df, DefaultParams()); !errors.Is(err, candles.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}
