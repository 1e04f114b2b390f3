// Package indicators appends technical indicator columns to a candle table.
package indicators

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"

	"emacross-core/internal/candles"
)

// Indicator column names.
const (
	ColRSI     = "rsi"
	ColBBLower = "bb_lowerband"
	ColBBMid   = "bb_middleband"
	ColBBUpper = "bb_upperband"
	ColEMAFast = "ema5"
	ColEMASlow = "ema21"
)

// Columns lists every column Populate appends, in order.
var Columns = []string{ColRSI, ColBBLower, ColBBMid, ColBBUpper, ColEMAFast, ColEMASlow}

// Params holds indicator windows. Warmup masks every row before it with NaN,
// on top of each indicator's own look-back.
type Params struct {
	RSIPeriod int
	BBWindow  int
	BBStdDev  float64
	EMAFast   int
	EMASlow   int
	Warmup    int
}

// DefaultParams returns RSI 14, Bollinger 20/2 on typical price, EMA 5/21, warm-up 30.
func DefaultParams() Params {
	return Params{
		RSIPeriod: 14,
		BBWindow:  20,
		BBStdDev:  2,
		EMAFast:   5,
		EMASlow:   21,
		Warmup:    30,
	}
}

// Populate returns df with the rsi, Bollinger and EMA columns appended.
// Every value is computed from rows at or before its own row.
func Populate(df dataframe.DataFrame, p Params) (dataframe.DataFrame, error) {
	if err := candles.Validate(df); err != nil {
		return df, err
	}
	high := df.Col(candles.ColHigh).Float()
	low := df.Col(candles.ColLow).Float()
	closes := df.Col(candles.ColClose).Float()

	bands := Bollinger(TypicalPrice(high, low, closes), p.BBWindow, p.BBStdDev)
	cols := []struct {
		name string
		vals []float64
	}{
		{ColRSI, RSI(closes, p.RSIPeriod)},
		{ColBBLower, bands.Lower},
		{ColBBMid, bands.Middle},
		{ColBBUpper, bands.Upper},
		{ColEMAFast, EMA(closes, p.EMAFast)},
		{ColEMASlow, EMA(closes, p.EMASlow)},
	}

	out := df
	for _, c := range cols {
		out = candles.WithFloat(out, c.name, MaskBefore(c.vals, p.Warmup))
	}
	if out.Err != nil {
		return df, fmt.Errorf("populate indicators: %w", out.Err)
	}
	return out, nil
}
