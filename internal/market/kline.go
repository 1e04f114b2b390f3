package market

import (
	"time"

	"emacross-core/internal/candles"
	"emacross-core/internal/events"
	marketpkg "emacross-core/pkg/market/binance"
)

// ToCandle converts an exchange kline to a table candle keyed by open time.
func ToCandle(k marketpkg.Kline) candles.Candle {
	return candles.Candle{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   k.Open,
		High:   k.High,
		Low:    k.Low,
		Close:  k.Close,
		Volume: k.Volume,
	}
}

// ToEvent wraps a kline as a bus payload. fallbackInterval is used when the
// kline does not name its own interval.
func ToEvent(k marketpkg.Kline, fallbackInterval string) events.CandleEvent {
	tf := k.Interval
	if tf == "" {
		tf = fallbackInterval
	}
	return events.CandleEvent{
		Pair:      k.Symbol,
		Timeframe: tf,
		Candle:    ToCandle(k),
		Closed:    k.Closed,
	}
}
