package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"emacross-core/internal/candles"
	"emacross-core/internal/events"
	"emacross-core/internal/indicators"
	"emacross-core/pkg/cache"
	"emacross-core/pkg/db"
)

const defaultMaxWindow = 500

// SignalStore persists analysis runs and fired signals. RecordRun keeps a
// run and its signals together or not at all.
type SignalStore interface {
	RecordRun(ctx context.Context, r db.Run, sigs []db.Signal) error
	InsertSignals(ctx context.Context, sigs []db.Signal) error
}

// Metrics receives pipeline measurements.
type Metrics interface {
	ObserveAnalysis(d time.Duration)
	ObserveStore(d time.Duration)
	IncrementCandles()
	IncrementSignals()
	IncrementErrors()
}

type noopMetrics struct{}

func (noopMetrics) ObserveAnalysis(time.Duration) {}
func (noopMetrics) ObserveStore(time.Duration)    {}
func (noopMetrics) IncrementCandles()             {}
func (noopMetrics) IncrementSignals()             {}
func (noopMetrics) IncrementErrors()              {}

// EngineOptions wires the engine to its collaborators. Every field is optional.
type EngineOptions struct {
	Bus       *events.Bus
	Store     SignalStore
	Cache     *cache.Sharded[Decision]
	Metrics   Metrics
	Logger    zerolog.Logger
	MaxWindow int
}

// RunSummary describes one batch analysis.
type RunSummary struct {
	ID      string `json:"id"`
	Pair    string `json:"pair"`
	Rows    int    `json:"rows"`
	Entries int    `json:"entries"`
	Exits   int    `json:"exits"`
}

// Engine keeps a rolling candle window per pair and re-runs the strategy
// pipeline on every update.
type Engine struct {
	strategy Strategy
	cfg      Config
	bus      *events.Bus
	store    SignalStore
	latest   *cache.Sharded[Decision]
	metrics  Metrics
	log      zerolog.Logger
	size     int

	mu      sync.Mutex
	windows map[string][]candles.Candle
	// open time of the newest candle seen closed, per pair
	closedAt map[string]time.Time
}

// NewEngine creates an engine for s.
func NewEngine(s Strategy, opts EngineOptions) *Engine {
	cfg := s.Config()
	size := opts.MaxWindow
	if size <= 0 {
		size = defaultMaxWindow
	}
	if size <= cfg.StartupCandleCount {
		size = cfg.StartupCandleCount + 1
	}
	latest := opts.Cache
	if latest == nil {
		latest = cache.NewSharded[Decision]()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Engine{
		strategy: s,
		cfg:      cfg,
		bus:      opts.Bus,
		store:    opts.Store,
		latest:   latest,
		metrics:  metrics,
		log:      opts.Logger.With().Str("strategy", s.Name()).Logger(),
		size:     size,
		windows:  make(map[string][]candles.Candle),
		closedAt: make(map[string]time.Time),
	}
}

// Strategy returns the strategy the engine drives.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Warmup seeds the window for pair with closed historical candles and
// computes an initial decision when enough rows are present. No signal is
// published or stored for warm-up data.
func (e *Engine) Warmup(pair string, cs []candles.Candle) error {
	e.mu.Lock()
	window := trimWindow(append([]candles.Candle(nil), cs...), e.size)
	e.windows[pair] = window
	delete(e.closedAt, pair)
	e.mu.Unlock()

	e.log.Info().Str("pair", pair).Int("candles", len(window)).Msg("warm-up loaded")
	if len(window) <= e.cfg.StartupCandleCount {
		return nil
	}
	d, err := e.decide(pair, window, true)
	if err != nil {
		return err
	}
	e.latest.Set(pair, d)
	return nil
}

// OnCandle folds one candle update into the window of pair. A candle with
// the same open time as the newest row replaces it; an older one is
// ignored. Once a candle has been seen closed, later updates for that open
// time are dropped so a re-delivered close never publishes or stores twice.
// It returns the decision for the newest row and whether one was produced.
func (e *Engine) OnCandle(ctx context.Context, pair string, c candles.Candle, closed bool) (Decision, bool, error) {
	if !closed && e.cfg.ProcessOnlyNewCandles {
		return Decision{}, false, nil
	}

	e.mu.Lock()
	if last, ok := e.closedAt[pair]; ok && !c.Time.After(last) {
		e.mu.Unlock()
		e.log.Debug().Str("pair", pair).Time("open_time", c.Time).Msg("candle already closed")
		return Decision{}, false, nil
	}
	window := e.windows[pair]
	switch {
	case len(window) == 0 || c.Time.After(window[len(window)-1].Time):
		window = append(window, c)
	case c.Time.Equal(window[len(window)-1].Time):
		window[len(window)-1] = c
	default:
		e.mu.Unlock()
		e.log.Debug().Str("pair", pair).Time("open_time", c.Time).Msg("stale candle ignored")
		return Decision{}, false, nil
	}
	window = trimWindow(window, e.size)
	e.windows[pair] = window
	if closed {
		e.closedAt[pair] = c.Time
	}
	snapshot := append([]candles.Candle(nil), window...)
	e.mu.Unlock()
	e.metrics.IncrementCandles()

	if len(snapshot) <= e.cfg.StartupCandleCount {
		return Decision{}, false, nil
	}

	d, err := e.decide(pair, snapshot, closed)
	if err != nil {
		e.metrics.IncrementErrors()
		return Decision{}, false, err
	}
	e.latest.Set(pair, d)

	if d.HasSignal() {
		e.log.Info().
			Str("pair", pair).
			Time("open_time", d.Time).
			Bool("enter", d.Enter).
			Bool("exit", d.Exit).
			Bool("closed", closed).
			Float64("close", d.Close).
			Msg("signal")
		e.metrics.IncrementSignals()
		if e.bus != nil {
			e.bus.Publish(events.EventStrategySignal, d)
		}
		if closed && e.store != nil {
			start := time.Now()
			if err := e.store.InsertSignals(ctx, []db.Signal{signalFromDecision("", d)}); err != nil {
				e.metrics.IncrementErrors()
				e.log.Error().Err(err).Str("pair", pair).Msg("store signal failed")
			}
			e.metrics.ObserveStore(time.Since(start))
		}
	}
	return d, true, nil
}

// Run consumes candle events until ctx is cancelled or stream closes.
func (e *Engine) Run(ctx context.Context, stream <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			ev, ok := msg.(events.CandleEvent)
			if !ok {
				continue
			}
			if ev.Timeframe != "" && ev.Timeframe != e.cfg.Timeframe {
				continue
			}
			if _, _, err := e.OnCandle(ctx, ev.Pair, ev.Candle, ev.Closed); err != nil {
				e.log.Error().Err(err).Str("pair", ev.Pair).Msg("analyse candle failed")
			}
		}
	}
}

// Latest returns the most recent decision computed for pair.
func (e *Engine) Latest(pair string) (Decision, bool) {
	return e.latest.Get(pair)
}

// Pairs lists the pairs with a cached decision.
func (e *Engine) Pairs() []string {
	return e.latest.Keys()
}

// AnalyzeHistory runs the pipeline over a full candle series and records
// the run and each fired row in the store, when one is configured.
func (e *Engine) AnalyzeHistory(ctx context.Context, meta Metadata, cs []candles.Candle) (dataframe.DataFrame, RunSummary, error) {
	if meta.Timeframe == "" {
		meta.Timeframe = e.cfg.Timeframe
	}
	out, err := Analyze(e.strategy, candles.NewFrame(cs), meta)
	if err != nil {
		return out, RunSummary{}, err
	}

	sigs, err := firedSignals(out, meta)
	if err != nil {
		return out, RunSummary{}, err
	}
	summary := RunSummary{ID: uuid.NewString(), Pair: meta.Pair, Rows: out.Nrow()}
	for i := range sigs {
		sigs[i].RunID = summary.ID
		if sigs[i].Enter {
			summary.Entries++
		}
		if sigs[i].Exit {
			summary.Exits++
		}
	}

	if e.store != nil {
		run := db.Run{
			ID:        summary.ID,
			Pair:      meta.Pair,
			Timeframe: meta.Timeframe,
			Strategy:  e.strategy.Name(),
			Rows:      summary.Rows,
			Entries:   summary.Entries,
			Exits:     summary.Exits,
		}
		if err := e.store.RecordRun(ctx, run, sigs); err != nil {
			return out, summary, fmt.Errorf("record run: %w", err)
		}
	}

	e.log.Info().
		Str("run_id", summary.ID).
		Str("pair", meta.Pair).
		Int("rows", summary.Rows).
		Int("entries", summary.Entries).
		Int("exits", summary.Exits).
		Msg("history analysed")
	return out, summary, nil
}

func (e *Engine) decide(pair string, window []candles.Candle, closed bool) (Decision, error) {
	meta := Metadata{Pair: pair, Timeframe: e.cfg.Timeframe}
	start := time.Now()
	out, err := Analyze(e.strategy, candles.NewFrame(window), meta)
	e.metrics.ObserveAnalysis(time.Since(start))
	if err != nil {
		return Decision{}, err
	}
	d, err := LatestDecision(out, meta)
	if err != nil {
		return Decision{}, err
	}
	d.Closed = closed
	return d, nil
}

func firedSignals(df dataframe.DataFrame, meta Metadata) ([]db.Signal, error) {
	enter, err := candles.Flags(df, ColEnter)
	if err != nil {
		return nil, err
	}
	exit, err := candles.Flags(df, ColExit)
	if err != nil {
		return nil, err
	}
	cs, err := candles.Candles(df)
	if err != nil {
		return nil, err
	}
	rsi, err := candles.Floats(df, indicators.ColRSI)
	if err != nil {
		return nil, err
	}

	var out []db.Signal
	for i := range cs {
		if !enter[i] && !exit[i] {
			continue
		}
		s := db.Signal{
			Pair:      meta.Pair,
			Timeframe: meta.Timeframe,
			OpenTime:  cs[i].Time.UnixMilli(),
			Close:     cs[i].Close,
			Enter:     enter[i],
			Exit:      exit[i],
		}
		if !math.IsNaN(rsi[i]) {
			v := rsi[i]
			s.RSI = &v
		}
		out = append(out, s)
	}
	return out, nil
}

func signalFromDecision(runID string, d Decision) db.Signal {
	s := db.Signal{
		RunID:     runID,
		Pair:      d.Pair,
		Timeframe: d.Timeframe,
		OpenTime:  d.Time.UnixMilli(),
		Close:     d.Close,
		Enter:     d.Enter,
		Exit:      d.Exit,
	}
	if v, ok := d.Values[indicators.ColRSI]; ok {
		s.RSI = &v
	}
	return s
}

func trimWindow(w []candles.Candle, size int) []candles.Candle {
	if len(w) <= size {
		return w
	}
	return append([]candles.Candle(nil), w[len(w)-size:]...)
}
