package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"emacross-core/internal/candles"
	"emacross-core/pkg/db"
	market "emacross-core/pkg/market/binance"
)

// KlineFetcher is the REST source of historical klines.
type KlineFetcher interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]market.Kline, error)
}

// CandleStore caches fetched candles.
type CandleStore interface {
	UpsertCandles(ctx context.Context, cs []db.Candle) error
	GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]db.Candle, error)
}

// HistoricalDataService fetches closed candles for warm-up and batch
// analysis, writing them through to the candle cache.
type HistoricalDataService struct {
	client KlineFetcher
	store  CandleStore
	log    zerolog.Logger
}

// NewHistoricalDataService creates a new service instance. store may be nil.
func NewHistoricalDataService(client KlineFetcher, store CandleStore, logger zerolog.Logger) *HistoricalDataService {
	return &HistoricalDataService{client: client, store: store, log: logger}
}

// GetCandles returns up to limit closed candles for pair, oldest first.
// Requests above one page are fetched backwards in pages. When the exchange
// cannot be reached the cached candles are returned instead.
func (s *HistoricalDataService) GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]candles.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	if s.client == nil {
		return s.Cached(ctx, pair, timeframe, limit)
	}

	klines, err := s.fetch(ctx, pair, timeframe, limit)
	if err != nil {
		if s.store == nil {
			return nil, err
		}
		s.log.Warn().Err(err).Str("pair", pair).Msg("klines fetch failed; using cached candles")
		return s.Cached(ctx, pair, timeframe, limit)
	}

	out := make([]candles.Candle, 0, len(klines))
	rows := make([]db.Candle, 0, len(klines))
	for _, k := range klines {
		c := candles.Candle{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		}
		out = append(out, c)
		rows = append(rows, toRow(pair, timeframe, c))
	}
	if s.store != nil {
		if err := s.store.UpsertCandles(ctx, rows); err != nil {
			s.log.Warn().Err(err).Str("pair", pair).Msg("candle cache write failed")
		}
	}
	return out, nil
}

// Cached returns candles from the cache only.
func (s *HistoricalDataService) Cached(ctx context.Context, pair, timeframe string, limit int) ([]candles.Candle, error) {
	if s.store == nil {
		return nil, errors.New("no candle cache configured")
	}
	rows, err := s.store.GetCandles(ctx, pair, timeframe, limit)
	if err != nil {
		return nil, err
	}
	out := make([]candles.Candle, len(rows))
	for i, r := range rows {
		out[i] = candles.Candle{
			Time:   time.UnixMilli(r.OpenTime).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out, nil
}

// Save writes candles into the cache.
func (s *HistoricalDataService) Save(ctx context.Context, pair, timeframe string, cs []candles.Candle) error {
	if s.store == nil {
		return nil
	}
	rows := make([]db.Candle, len(cs))
	for i, c := range cs {
		rows[i] = toRow(pair, timeframe, c)
	}
	return s.store.UpsertCandles(ctx, rows)
}

func (s *HistoricalDataService) fetch(ctx context.Context, pair, timeframe string, limit int) ([]market.Kline, error) {
	var (
		all     []market.Kline
		endTime int64
	)
	for len(all) < limit {
		page := limit - len(all)
		// Ask for one extra row to cover a still-forming newest candle.
		if endTime == 0 {
			page++
		}
		if page > market.MaxKlinesPerRequest {
			page = market.MaxKlinesPerRequest
		}
		klines, err := s.client.GetKlines(ctx, pair, timeframe, page, 0, endTime)
		if err != nil {
			return nil, fmt.Errorf("get klines %s %s: %w", pair, timeframe, err)
		}
		var closed []market.Kline
		for _, k := range klines {
			if k.Closed {
				closed = append(closed, k)
			}
		}
		if len(closed) == 0 {
			break
		}
		all = append(closed, all...)
		endTime = closed[0].OpenTime - 1
		if len(klines) < page {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].OpenTime < all[j].OpenTime })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func toRow(pair, timeframe string, c candles.Candle) db.Candle {
	return db.Candle{
		Pair:      pair,
		Timeframe: timeframe,
		OpenTime:  c.Time.UnixMilli(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

// LoadCSV reads a candle table from a CSV file with a header of
// date,open,high,low,close,volume (date in Unix milliseconds).
func LoadCSV(path string) ([]candles.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df, err := candles.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return candles.Candles(df)
}
