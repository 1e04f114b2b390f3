package candles

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func sampleCandles(n int) []Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = Candle{
			Time:   start.Add(time.Duration(i) * 5 * time.Minute),
			Open:   p - 0.5,
			High:   p + 1,
			Low:    p - 1,
			Close:  p,
			Volume: 10,
		}
	}
	return out
}

func TestNewFrameRoundTrip(t *testing.T) {
	in := sampleCandles(5)
	df := NewFrame(in)
	if df.Err != nil {
		t.Fatalf("frame error: %v", df.Err)
	}
	if df.Nrow() != 5 {
		t.Fatalf("expected 5 rows, got %d", df.Nrow())
	}

	out, err := Candles(df)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	for i := range in {
		if !out[i].Time.Equal(in[i].Time) || out[i].Close != in[i].Close || out[i].High != in[i].High {
			t.Fatalf("row %d mismatch: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestReadCSV(t *testing.T) {
	csv := "date,open,high,low,close,volume\n" +
		"1704067200000,1,2,0.5,1.5,100\n" +
		"1704067500000,1.5,2.5,1,2,120\n"

	df, err := ReadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}
	closes, err := Floats(df, ColClose)
	if err != nil {
		t.Fatalf("Floats returned error: %v", err)
	}
	if len(closes) != 2 || closes[1] != 2 {
		t.Fatalf("unexpected closes %v", closes)
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	csv := "date,open,high,low,close\n1704067200000,1,2,0.5,1.5\n"

	_, err := ReadCSV(strings.NewReader(csv))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestValidateEmpty(t *testing.T) {
	if err := Validate(NewFrame(nil)); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestWithFloatDoesNotTouchInput(t *testing.T) {
	df := NewFrame(sampleCandles(3))
	out := WithFloat(df, "x", []float64{1, math.NaN(), 3})

	if HasColumn(df, "x") {
		t.Fatalf("input frame was modified")
	}
	rows := Rows(out)
	if rows[1]["x"] != nil {
		t.Fatalf("expected NaN rendered as nil, got %v", rows[1]["x"])
	}
	if rows[2]["x"] != 3.0 {
		t.Fatalf("expected 3, got %v", rows[2]["x"])
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	df := WithFlag(NewFrame(sampleCandles(3)), "sig", []bool{false, true, false})
	flags, err := Flags(df, "sig")
	if err != nil {
		t.Fatalf("Flags returned error: %v", err)
	}
	if flags[0] || !flags[1] || flags[2] {
		t.Fatalf("unexpected flags %v", flags)
	}
	last := LastRow(df)
	if last["sig"] != 0 {
		t.Fatalf("expected last sig 0, got %v", last["sig"])
	}
}
