package strategy

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/markcheno/go-talib"

	"emacross-core/internal/candles"
	"emacross-core/internal/indicators"
)

// RSI thresholds of the entry and exit rules. The buy_rsi and sell_rsi
// parameters in Config are not consulted here.
const (
	entryRSIFloor  = 29
	exitRSICeiling = 71
)

// EMACross enters on a close below the lower Bollinger band with RSI above
// 29, or on an EMA5/EMA21 golden cross. It exits on a close above the middle
// band with RSI above 71, or on a death cross.
type EMACross struct {
	cfg Config
}

// NewEMACross builds the strategy around a copy of cfg.
func NewEMACross(cfg Config) *EMACross {
	return &EMACross{cfg: cfg.Clone()}
}

func (s *EMACross) Name() string { return s.cfg.Name }

// Config returns a copy of the strategy record.
func (s *EMACross) Config() Config { return s.cfg.Clone() }

// InformativePairs is empty: only the traded pair and timeframe are used.
func (s *EMACross) InformativePairs() []PairTimeframe {
	return []PairTimeframe{}
}

// PopulateIndicators appends rsi, Bollinger bands of typical price and ema5/ema21.
func (s *EMACross) PopulateIndicators(df dataframe.DataFrame, _ Metadata) (dataframe.DataFrame, error) {
	return indicators.Populate(df, s.cfg.IndicatorParams())
}

// PopulateEntryTrend sets enter_signal.
func (s *EMACross) PopulateEntryTrend(df dataframe.DataFrame, _ Metadata) (dataframe.DataFrame, error) {
	cols, err := readColumns(df, candles.ColClose, indicators.ColRSI, indicators.ColBBLower, indicators.ColEMAFast, indicators.ColEMASlow)
	if err != nil {
		return df, fmt.Errorf("populate entry trend: %w", err)
	}
	closes, rsi, lower := cols[0], cols[1], cols[2]
	golden := CrossedAbove(cols[3], cols[4])

	enter := make([]bool, len(closes))
	for i := range enter {
		oversold := rsi[i] > entryRSIFloor && closes[i] < lower[i]
		enter[i] = oversold || golden[i]
	}
	return candles.WithFlag(df, ColEnter, enter), nil
}

// PopulateExitTrend sets exit_signal.
func (s *EMACross) PopulateExitTrend(df dataframe.DataFrame, _ Metadata) (dataframe.DataFrame, error) {
	cols, err := readColumns(df, candles.ColClose, indicators.ColRSI, indicators.ColBBMid, indicators.ColEMAFast, indicators.ColEMASlow)
	if err != nil {
		return df, fmt.Errorf("populate exit trend: %w", err)
	}
	closes, rsi, mid := cols[0], cols[1], cols[2]
	death := CrossedBelow(cols[3], cols[4])

	exit := make([]bool, len(closes))
	for i := range exit {
		overbought := rsi[i] > exitRSICeiling && closes[i] > mid[i]
		exit[i] = overbought || death[i]
	}
	return candles.WithFlag(df, ColExit, exit), nil
}

// CrossedAbove marks rows where fast > slow and, on the previous row,
// fast <= slow. NaN on either row never marks.
func CrossedAbove(fast, slow []float64) []bool {
	out := make([]bool, len(fast))
	if len(fast) < 2 {
		return out
	}
	// talib.Crossover reads the last two values and wants three, so both
	// series carry one leading NaN that is never compared.
	pf := append([]float64{math.NaN()}, fast...)
	ps := append([]float64{math.NaN()}, slow...)
	for i := 1; i < len(fast); i++ {
		out[i] = talib.Crossover(pf[:i+2], ps[:i+2])
	}
	return out
}

// CrossedBelow marks rows where fast < slow and, on the previous row,
// fast > slow. talib.Crossunder accepts fast == slow on the current row,
// so the strict comparison is kept here.
func CrossedBelow(fast, slow []float64) []bool {
	out := make([]bool, len(fast))
	for i := 1; i < len(fast); i++ {
		out[i] = fast[i] < slow[i] && fast[i-1] > slow[i-1]
	}
	return out
}

func readColumns(df dataframe.DataFrame, names ...string) ([][]float64, error) {
	if err := candles.RequireColumns(df, names...); err != nil {
		return nil, err
	}
	out := make([][]float64, len(names))
	for i, n := range names {
		out[i] = df.Col(n).Float()
	}
	return out, nil
}
