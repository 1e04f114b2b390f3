package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"emacross-core/internal/indicators"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid strategy config")

// ROIStep is one entry of the minimal-ROI schedule: after Minutes in a
// trade, a profit of Ratio is enough to exit.
type ROIStep struct {
	Minutes int     `json:"minutes"`
	Ratio   float64 `json:"ratio"`
}

// IntParameter is an integer knob declared for external parameter search.
type IntParameter struct {
	Low      int    `yaml:"low" json:"low"`
	High     int    `yaml:"high" json:"high"`
	Default  int    `yaml:"default" json:"default"`
	Space    string `yaml:"space" json:"space"`
	Optimize bool   `yaml:"optimize" json:"optimize"`
	Load     bool   `yaml:"load" json:"load"`
}

// OrderTypes maps order purposes to exchange order types.
type OrderTypes struct {
	Entry              string `yaml:"entry" json:"entry"`
	Exit               string `yaml:"exit" json:"exit"`
	Stoploss           string `yaml:"stoploss" json:"stoploss"`
	StoplossOnExchange bool   `yaml:"stoploss_on_exchange" json:"stoploss_on_exchange"`
}

// TimeInForce maps order purposes to time-in-force policies.
type TimeInForce struct {
	Entry string `yaml:"entry" json:"entry"`
	Exit  string `yaml:"exit" json:"exit"`
}

// PlotStyle is the per-series style of a plot.
type PlotStyle struct {
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// PlotConfig describes the chart layout shown by plotting tools.
type PlotConfig struct {
	MainPlot map[string]PlotStyle            `yaml:"main_plot" json:"main_plot"`
	Subplots map[string]map[string]PlotStyle `yaml:"subplots" json:"subplots"`
}

// Config is the static strategy record. It is passed by value; nothing in
// this package mutates a Config after construction.
type Config struct {
	Name                        string       `yaml:"name" json:"name"`
	InterfaceVersion            int          `yaml:"interface_version" json:"interface_version"`
	CanShort                    bool         `yaml:"can_short" json:"can_short"`
	Timeframe                   string       `yaml:"timeframe" json:"timeframe"`
	MinimalROI                  ROITable     `yaml:"minimal_roi" json:"minimal_roi"`
	Stoploss                    float64      `yaml:"stoploss" json:"stoploss"`
	TrailingStop                bool         `yaml:"trailing_stop" json:"trailing_stop"`
	TrailingStopPositive        *float64     `yaml:"trailing_stop_positive" json:"trailing_stop_positive"`
	TrailingStopPositiveOffset  float64      `yaml:"trailing_stop_positive_offset" json:"trailing_stop_positive_offset"`
	TrailingOnlyOffsetIsReached bool         `yaml:"trailing_only_offset_is_reached" json:"trailing_only_offset_is_reached"`
	ProcessOnlyNewCandles       bool         `yaml:"process_only_new_candles" json:"process_only_new_candles"`
	UseExitSignal               bool         `yaml:"use_exit_signal" json:"use_exit_signal"`
	ExitProfitOnly              bool         `yaml:"exit_profit_only" json:"exit_profit_only"`
	IgnoreROIIfEntrySignal      bool         `yaml:"ignore_roi_if_entry_signal" json:"ignore_roi_if_entry_signal"`
	StartupCandleCount          int          `yaml:"startup_candle_count" json:"startup_candle_count"`
	BuyRSI                      IntParameter `yaml:"buy_rsi" json:"buy_rsi"`
	SellRSI                     IntParameter `yaml:"sell_rsi" json:"sell_rsi"`
	ShortRSI                    IntParameter `yaml:"short_rsi" json:"short_rsi"`
	ExitShortRSI                IntParameter `yaml:"exit_short_rsi" json:"exit_short_rsi"`
	OrderTypes                  OrderTypes   `yaml:"order_types" json:"order_types"`
	OrderTimeInForce            TimeInForce  `yaml:"order_time_in_force" json:"order_time_in_force"`
	PlotConfig                  PlotConfig   `yaml:"plot_config" json:"plot_config"`
}

// DefaultConfig returns the EMA-cross strategy as shipped.
func DefaultConfig() Config {
	return Config{
		Name:             "ema_cross",
		InterfaceVersion: 3,
		Timeframe:        "5m",
		MinimalROI: ROITable{
			{Minutes: 0, Ratio: 0.208},
			{Minutes: 90, Ratio: 0.154},
			{Minutes: 251, Ratio: 0.061},
			{Minutes: 606, Ratio: 0},
		},
		Stoploss:           -0.037,
		UseExitSignal:      true,
		StartupCandleCount: 30,
		BuyRSI:             IntParameter{Low: 1, High: 50, Default: 30, Space: "buy", Optimize: true, Load: true},
		SellRSI:            IntParameter{Low: 50, High: 100, Default: 70, Space: "sell", Optimize: true, Load: true},
		ShortRSI:           IntParameter{Low: 51, High: 100, Default: 70, Space: "sell", Optimize: true, Load: true},
		ExitShortRSI:       IntParameter{Low: 1, High: 50, Default: 30, Space: "buy", Optimize: true, Load: true},
		OrderTypes: OrderTypes{
			Entry:    "limit",
			Exit:     "limit",
			Stoploss: "market",
		},
		OrderTimeInForce: TimeInForce{Entry: "gtc", Exit: "gtc"},
		PlotConfig: PlotConfig{
			MainPlot: map[string]PlotStyle{
				"tema": {},
				"sar":  {Color: "white"},
			},
			Subplots: map[string]map[string]PlotStyle{
				"MACD": {
					"macd":       {Color: "blue"},
					"macdsignal": {Color: "orange"},
				},
				"RSI": {
					"rsi": {Color: "red"},
				},
			},
		},
	}
}

// Clone returns a deep copy of c. The copy shares no slices, maps or
// pointers with c.
func (c Config) Clone() Config {
	out := c
	if c.MinimalROI != nil {
		out.MinimalROI = append(ROITable(nil), c.MinimalROI...)
	}
	if c.TrailingStopPositive != nil {
		v := *c.TrailingStopPositive
		out.TrailingStopPositive = &v
	}
	out.PlotConfig.MainPlot = cloneStyles(c.PlotConfig.MainPlot)
	if c.PlotConfig.Subplots != nil {
		out.PlotConfig.Subplots = make(map[string]map[string]PlotStyle, len(c.PlotConfig.Subplots))
		for name, styles := range c.PlotConfig.Subplots {
			out.PlotConfig.Subplots[name] = cloneStyles(styles)
		}
	}
	return out
}

func cloneStyles(m map[string]PlotStyle) map[string]PlotStyle {
	if m == nil {
		return nil
	}
	out := make(map[string]PlotStyle, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate checks the record for values the pipeline or a host cannot use.
func (c Config) Validate() error {
	if _, err := TimeframeDuration(c.Timeframe); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Stoploss >= 0 || c.Stoploss < -1 {
		return fmt.Errorf("%w: stoploss %v must be in [-1, 0)", ErrInvalidConfig, c.Stoploss)
	}
	if c.StartupCandleCount < 0 {
		return fmt.Errorf("%w: startup_candle_count must not be negative", ErrInvalidConfig)
	}
	if c.TrailingStopPositive != nil && *c.TrailingStopPositive <= 0 {
		return fmt.Errorf("%w: trailing_stop_positive must be positive", ErrInvalidConfig)
	}
	params := map[string]IntParameter{
		"buy_rsi":        c.BuyRSI,
		"sell_rsi":       c.SellRSI,
		"short_rsi":      c.ShortRSI,
		"exit_short_rsi": c.ExitShortRSI,
	}
	for name, p := range params {
		if p.Low > p.High {
			return fmt.Errorf("%w: %s low %d above high %d", ErrInvalidConfig, name, p.Low, p.High)
		}
		if p.Default < p.Low || p.Default > p.High {
			return fmt.Errorf("%w: %s default %d outside [%d, %d]", ErrInvalidConfig, name, p.Default, p.Low, p.High)
		}
	}
	seen := make(map[int]bool, len(c.MinimalROI))
	for _, step := range c.MinimalROI {
		if step.Minutes < 0 {
			return fmt.Errorf("%w: minimal_roi threshold %d is negative", ErrInvalidConfig, step.Minutes)
		}
		if seen[step.Minutes] {
			return fmt.Errorf("%w: minimal_roi threshold %d repeated", ErrInvalidConfig, step.Minutes)
		}
		seen[step.Minutes] = true
	}
	return nil
}

// IndicatorParams derives the indicator windows used by the pipeline.
func (c Config) IndicatorParams() indicators.Params {
	p := indicators.DefaultParams()
	p.Warmup = c.StartupCandleCount
	return p
}

// ROIAt returns the ROI target for a trade open for elapsed. ok is false
// when no step applies yet.
func (c Config) ROIAt(elapsed time.Duration) (ratio float64, ok bool) {
	minutes := int(elapsed / time.Minute)
	best := -1
	for _, step := range c.MinimalROI {
		if step.Minutes <= minutes && step.Minutes > best {
			best = step.Minutes
			ratio = step.Ratio
		}
	}
	return ratio, best >= 0
}

// ROITable is the minimal-ROI schedule, kept sorted by Minutes.
type ROITable []ROIStep

func (t ROITable) sorted() ROITable {
	out := make(ROITable, len(t))
	copy(out, t)
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes < out[j].Minutes })
	return out
}

// TimeframeDuration parses timeframes such as "1m", "5m", "4h", "1d" or "1w".
func TimeframeDuration(tf string) (time.Duration, error) {
	tf = strings.TrimSpace(tf)
	if len(tf) < 2 {
		return 0, fmt.Errorf("timeframe %q: too short", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("timeframe %q: bad amount", tf)
	}
	var unit time.Duration
	switch tf[len(tf)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("timeframe %q: unknown unit", tf)
	}
	return time.Duration(n) * unit, nil
}
