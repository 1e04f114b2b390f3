package events

import "emacross-core/internal/candles"

// Event enumerates topics carried by the bus.
type Event string

const (
	// EventCandle carries CandleEvent payloads from market feeds.
	EventCandle Event = "candle"
	// EventStrategySignal carries strategy.Decision payloads.
	EventStrategySignal Event = "strategy_signal"
)

// CandleEvent is one candle update for a pair. Closed is false while the
// interval is still forming.
type CandleEvent struct {
	Pair      string
	Timeframe string
	Candle    candles.Candle
	Closed    bool
}
