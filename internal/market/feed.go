package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"emacross-core/internal/events"
	market "emacross-core/pkg/market/binance"
)

// KlineSource is the REST side of the feed.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]market.Kline, error)
}

// KlineStreamer is the websocket side of the feed.
type KlineStreamer interface {
	SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan market.Kline, func(), error)
}

// Feed streams klines from Binance and publishes CandleEvents to the bus.
type Feed struct {
	Client   KlineSource
	Stream   KlineStreamer
	Bus      *events.Bus
	Symbols  []string
	Interval string
	Logger   zerolog.Logger

	// PollEvery is the snapshot interval of the REST fallback; 0 disables it.
	PollEvery time.Duration
	// Reconnect is the pause before a dropped stream is dialled again.
	Reconnect time.Duration
}

// Start begins websocket streaming, plus REST polling, for configured symbols.
func (f *Feed) Start(ctx context.Context) {
	if f.Bus == nil || f.Stream == nil {
		f.Logger.Warn().Msg("market feed not fully configured; skipping start")
		return
	}
	if f.Reconnect <= 0 {
		f.Reconnect = 5 * time.Second
	}

	for _, sym := range f.Symbols {
		go f.stream(ctx, sym)
	}

	// Lightweight polling fallback to avoid gaps.
	if f.Client != nil && f.PollEvery > 0 {
		go f.pollSnapshots(ctx)
	}
}

func (f *Feed) stream(ctx context.Context, symbol string) {
	log := f.Logger.With().Str("pair", symbol).Logger()
	for {
		ch, stop, err := f.Stream.SubscribeKlines(ctx, symbol, f.Interval)
		if err != nil {
			log.Error().Err(err).Msg("ws subscribe failed")
		} else {
			log.Info().Str("interval", f.Interval).Msg("kline stream connected")
			for k := range ch {
				f.Bus.Publish(events.EventCandle, ToEvent(k, f.Interval))
			}
			stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.Reconnect):
			log.Warn().Msg("kline stream reconnecting")
		}
	}
}

func (f *Feed) pollSnapshots(ctx context.Context) {
	ticker := time.NewTicker(f.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.PollOnce(ctx)
		}
	}
}

// PollOnce publishes the newest closed kline of every symbol.
func (f *Feed) PollOnce(ctx context.Context) {
	for _, sym := range f.Symbols {
		klines, err := f.Client.GetKlines(ctx, sym, f.Interval, 2, 0, 0)
		if err != nil {
			f.Logger.Warn().Err(err).Str("pair", sym).Msg("market feed snapshot failed")
			continue
		}
		for i := len(klines) - 1; i >= 0; i-- {
			if klines[i].Closed {
				f.Bus.Publish(events.EventCandle, ToEvent(klines[i], f.Interval))
				break
			}
		}
	}
}
