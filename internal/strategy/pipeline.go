package strategy

import (
	"math"
	"time"

	"github.com/go-gota/gota/dataframe"

	"emacross-core/internal/candles"
	"emacross-core/internal/indicators"
)

// Analyze runs indicators, entry and exit in that order. The input frame is
// not modified.
func Analyze(s Strategy, df dataframe.DataFrame, meta Metadata) (dataframe.DataFrame, error) {
	steps := []func(dataframe.DataFrame, Metadata) (dataframe.DataFrame, error){
		s.PopulateIndicators,
		s.PopulateEntryTrend,
		s.PopulateExitTrend,
	}
	out := df
	for _, step := range steps {
		var err error
		if out, err = step(out, meta); err != nil {
			return df, err
		}
	}
	return out, nil
}

// LatestDecision summarises the last row of an analysed frame.
func LatestDecision(df dataframe.DataFrame, meta Metadata) (Decision, error) {
	n := df.Nrow()
	if n == 0 {
		return Decision{}, candles.ErrEmptyFrame
	}
	enter, err := candles.Flags(df, ColEnter)
	if err != nil {
		return Decision{}, err
	}
	exit, err := candles.Flags(df, ColExit)
	if err != nil {
		return Decision{}, err
	}
	closes, err := candles.Floats(df, candles.ColClose)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Pair:      meta.Pair,
		Timeframe: meta.Timeframe,
		Close:     closes[n-1],
		Enter:     enter[n-1],
		Exit:      exit[n-1],
		Values:    make(map[string]float64, len(indicators.Columns)),
	}
	if candles.HasColumn(df, candles.ColDate) {
		ms := df.Col(candles.ColDate).Float()[n-1]
		if !math.IsNaN(ms) {
			d.Time = time.UnixMilli(int64(ms)).UTC()
		}
	}
	for _, col := range indicators.Columns {
		if !candles.HasColumn(df, col) {
			continue
		}
		if v := df.Col(col).Float()[n-1]; !math.IsNaN(v) {
			d.Values[col] = v
		}
	}
	return d, nil
}
