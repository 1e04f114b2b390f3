package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"emacross-core/internal/candles"
	"emacross-core/internal/events"
	"emacross-core/internal/strategy"
)

// MockFeed generates a synthetic random-walk candle stream for local
// development. Every tick emits one closed candle per symbol; candle open
// times advance by Timeframe regardless of the tick rate.
type MockFeed struct {
	Bus        *events.Bus
	Symbols    []string
	Timeframe  string
	StartPrice float64
	Step       float64
	Interval   time.Duration
	Start      time.Time
	Seed       int64
	Logger     zerolog.Logger

	once   sync.Once
	rng    *rand.Rand
	bar    time.Duration
	prices map[string]float64
	next   time.Time
}

func (m *MockFeed) init() {
	m.once.Do(func() {
		if len(m.Symbols) == 0 {
			m.Symbols = []string{"BTCUSDT"}
		}
		if m.Timeframe == "" {
			m.Timeframe = "5m"
		}
		if m.StartPrice == 0 {
			m.StartPrice = 100.0
		}
		if m.Step == 0 {
			m.Step = 0.5
		}
		if m.Interval == 0 {
			m.Interval = time.Second
		}
		m.bar = 5 * time.Minute
		if d, err := strategy.TimeframeDuration(m.Timeframe); err == nil {
			m.bar = d
		}
		if m.Start.IsZero() {
			m.Start = time.Now().UTC().Truncate(m.bar)
		}
		seed := m.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		m.rng = rand.New(rand.NewSource(seed))
		m.prices = make(map[string]float64, len(m.Symbols))
		for _, s := range m.Symbols {
			m.prices[s] = m.StartPrice
		}
		m.next = m.Start
	})
}

// Run publishes candles until ctx is cancelled.
func (m *MockFeed) Run(ctx context.Context) {
	if m.Bus == nil {
		m.Logger.Warn().Msg("mock feed: bus not set")
		return
	}
	m.init()
	m.Logger.Info().Strs("pairs", m.Symbols).Str("timeframe", m.Timeframe).Msg("mock feed started")

	t := time.NewTicker(m.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, ev := range m.Tick() {
				m.Bus.Publish(events.EventCandle, ev)
			}
		}
	}
}

// Tick advances every symbol by one candle and returns the events.
func (m *MockFeed) Tick() []events.CandleEvent {
	m.init()
	out := make([]events.CandleEvent, 0, len(m.Symbols))
	for _, sym := range m.Symbols {
		open := m.prices[sym]
		// simple random walk
		closePrice := math.Max(open+(m.rng.Float64()*2-1)*m.Step, m.Step)
		wick := m.rng.Float64() * m.Step / 2
		c := candles.Candle{
			Time:   m.next,
			Open:   open,
			High:   math.Max(open, closePrice) + wick,
			Low:    math.Max(math.Min(open, closePrice)-wick, 0),
			Close:  closePrice,
			Volume: 1 + m.rng.Float64()*10,
		}
		m.prices[sym] = closePrice
		out = append(out, events.CandleEvent{Pair: sym, Timeframe: m.Timeframe, Candle: c, Closed: true})
	}
	m.next = m.next.Add(m.bar)
	return out
}

// History returns n closed candles for symbol ending before the live stream starts.
func (m *MockFeed) History(symbol string, n int) []candles.Candle {
	m.init()
	rng := rand.New(rand.NewSource(int64(len(symbol))*7919 + int64(n)))
	out := make([]candles.Candle, n)
	price := m.StartPrice
	for i := n - 1; i >= 0; i-- {
		open := math.Max(price-(rng.Float64()*2-1)*m.Step, m.Step)
		out[i] = candles.Candle{
			Time:   m.Start.Add(-time.Duration(n-i) * m.bar),
			Open:   open,
			High:   math.Max(open, price) + m.Step/4,
			Low:    math.Max(math.Min(open, price)-m.Step/4, 0),
			Close:  price,
			Volume: 1 + rng.Float64()*10,
		}
		price = open
	}
	return out
}
