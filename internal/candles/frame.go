// Package candles defines the candle table consumed by the signal pipeline.
//
// A table is a gota DataFrame with one row per fixed-length interval, ordered
// by open time. Operations never modify a frame in place: every derived
// column is attached with Mutate, which returns a new frame.
package candles

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Column names of the candle table.
const (
	ColDate   = "date"
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

var (
	ErrMissingColumn = errors.New("candle table: missing column")
	ErrEmptyFrame    = errors.New("candle table: no rows")
)

// RequiredColumns lists the OHLCV columns every table must carry.
var RequiredColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// Candle is one OHLCV record.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// NewFrame builds a candle table from typed candles, preserving order.
func NewFrame(cs []Candle) dataframe.DataFrame {
	n := len(cs)
	dates := make([]int, n)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	vols := make([]float64, n)
	for i, c := range cs {
		dates[i] = int(c.Time.UnixMilli())
		opens[i] = c.Open
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		vols[i] = c.Volume
	}
	return dataframe.New(
		series.New(dates, series.Int, ColDate),
		series.New(opens, series.Float, ColOpen),
		series.New(highs, series.Float, ColHigh),
		series.New(lows, series.Float, ColLow),
		series.New(closes, series.Float, ColClose),
		series.New(vols, series.Float, ColVolume),
	)
}

var csvTypes = map[string]series.Type{
	ColDate:   series.Int,
	ColOpen:   series.Float,
	ColHigh:   series.Float,
	ColLow:    series.Float,
	ColClose:  series.Float,
	ColVolume: series.Float,
}

// ReadCSV loads a candle table from CSV with a header row. The date column,
// when present, holds open times in Unix milliseconds.
func ReadCSV(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r, dataframe.WithTypes(csvTypes))
	if df.Err != nil {
		return df, fmt.Errorf("read candle csv: %w", df.Err)
	}
	if err := Validate(df); err != nil {
		return df, err
	}
	return df, nil
}

// Validate rejects frames that cannot be analysed.
func Validate(df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("candle table: %w", df.Err)
	}
	if err := RequireColumns(df, RequiredColumns...); err != nil {
		return err
	}
	if df.Nrow() == 0 {
		return ErrEmptyFrame
	}
	return nil
}

// RequireColumns reports the first of cols absent from df.
func RequireColumns(df dataframe.DataFrame, cols ...string) error {
	have := make(map[string]struct{}, df.Ncol())
	for _, name := range df.Names() {
		have[name] = struct{}{}
	}
	for _, c := range cols {
		if _, ok := have[c]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return nil
}

// HasColumn reports whether df carries a column named col.
func HasColumn(df dataframe.DataFrame, col string) bool {
	return RequireColumns(df, col) == nil
}

// Floats returns a column as float64 values. Missing values come back as NaN.
func Floats(df dataframe.DataFrame, col string) ([]float64, error) {
	if err := RequireColumns(df, col); err != nil {
		return nil, err
	}
	return df.Col(col).Float(), nil
}

// WithFloat returns df with col set to vals.
func WithFloat(df dataframe.DataFrame, col string, vals []float64) dataframe.DataFrame {
	return df.Mutate(series.New(vals, series.Float, col))
}

// WithFlag returns df with col set to 0/1 integers.
func WithFlag(df dataframe.DataFrame, col string, flags []bool) dataframe.DataFrame {
	ints := make([]int, len(flags))
	for i, f := range flags {
		if f {
			ints[i] = 1
		}
	}
	return df.Mutate(series.New(ints, series.Int, col))
}

// Flags reads a 0/1 column back as booleans.
func Flags(df dataframe.DataFrame, col string) ([]bool, error) {
	vals, err := Floats(df, col)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(vals))
	for i, v := range vals {
		out[i] = v == 1
	}
	return out, nil
}

// Candles converts a table back to typed candles. Rows without a date get a zero time.
func Candles(df dataframe.DataFrame) ([]Candle, error) {
	if err := RequireColumns(df, RequiredColumns...); err != nil {
		return nil, err
	}
	opens, highs, lows := df.Col(ColOpen).Float(), df.Col(ColHigh).Float(), df.Col(ColLow).Float()
	closes, vols := df.Col(ColClose).Float(), df.Col(ColVolume).Float()
	var dates []float64
	if HasColumn(df, ColDate) {
		dates = df.Col(ColDate).Float()
	}

	out := make([]Candle, df.Nrow())
	for i := range out {
		c := Candle{Open: opens[i], High: highs[i], Low: lows[i], Close: closes[i], Volume: vols[i]}
		if dates != nil && !math.IsNaN(dates[i]) {
			c.Time = time.UnixMilli(int64(dates[i])).UTC()
		}
		out[i] = c
	}
	return out, nil
}
