package strategy

import (
	"time"

	"github.com/go-gota/gota/dataframe"
)

// Decision column names.
const (
	ColEnter = "enter_signal"
	ColExit  = "exit_signal"
)

// Metadata identifies the pair a table belongs to.
type Metadata struct {
	Pair      string
	Timeframe string
}

// PairTimeframe names auxiliary market data a strategy wants cached.
type PairTimeframe struct {
	Pair      string `json:"pair"`
	Timeframe string `json:"timeframe"`
}

// Strategy is the set of table transforms the engine composes. Each call
// takes a table and returns a new one; implementations keep no state
// between calls.
type Strategy interface {
	Name() string
	Config() Config
	InformativePairs() []PairTimeframe
	PopulateIndicators(df dataframe.DataFrame, meta Metadata) (dataframe.DataFrame, error)
	PopulateEntryTrend(df dataframe.DataFrame, meta Metadata) (dataframe.DataFrame, error)
	PopulateExitTrend(df dataframe.DataFrame, meta Metadata) (dataframe.DataFrame, error)
}

// Decision is the outcome for the newest row of an analysed table.
type Decision struct {
	Pair      string             `json:"pair"`
	Timeframe string             `json:"timeframe"`
	Time      time.Time          `json:"time"`
	Close     float64            `json:"close"`
	Enter     bool               `json:"enter"`
	Exit      bool               `json:"exit"`
	Closed    bool               `json:"closed"`
	Values    map[string]float64 `json:"values,omitempty"`
}

// HasSignal reports whether either decision column fired.
func (d Decision) HasSignal() bool {
	return d.Enter || d.Exit
}
