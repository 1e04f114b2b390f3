package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"emacross-core/internal/api"
	"emacross-core/internal/candles"
	"emacross-core/internal/data"
	"emacross-core/internal/events"
	"emacross-core/internal/market"
	"emacross-core/internal/monitor"
	"emacross-core/internal/persistence"
	"emacross-core/internal/strategy"
	"emacross-core/pkg/config"
	"emacross-core/pkg/db"
	"emacross-core/pkg/logger"
	marketbinance "emacross-core/pkg/market/binance"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info")
		bootLog.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.New(cfg.LogLevel)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	log.Info().Str("mode", cfg.Mode).Strs("pairs", cfg.Pairs).Str("version", buildVersion).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("db init failed")
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("db migrations failed")
	}
	queries := database.Queries()

	stratCfg := strategy.DefaultConfig()
	if cfg.StrategyConfigPath != "" {
		if stratCfg, err = strategy.LoadConfig(cfg.StrategyConfigPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.StrategyConfigPath).Msg("strategy config load failed")
		}
	}
	strat := strategy.NewEMACross(stratCfg)

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	metrics.TrackBus(bus)
	engine := strategy.NewEngine(strat, strategy.EngineOptions{
		Bus:       bus,
		Store:     queries,
		Metrics:   metrics,
		Logger:    logger.Component(log, "engine"),
		MaxWindow: cfg.MaxWindow,
	})

	var client *marketbinance.Client
	var history *data.HistoricalDataService
	if !cfg.UseMockFeed {
		client = marketbinance.NewClient(cfg.BinanceTestnet)
		history = data.NewHistoricalDataService(client, queries, logger.Component(log, "history"))
	} else {
		history = data.NewHistoricalDataService(nil, queries, logger.Component(log, "history"))
	}

	if cfg.Mode == config.ModeAnalyze {
		if err := runAnalyze(ctx, cfg, engine, history, log); err != nil {
			log.Fatal().Err(err).Msg("analysis failed")
		}
		return
	}

	// Serve mode: warm up, then follow the live (or mock) candle stream.
	mock := &market.MockFeed{
		Bus:        bus,
		Symbols:    cfg.Pairs,
		Timeframe:  stratCfg.Timeframe,
		StartPrice: 100,
		Step:       0.8,
		Logger:     logger.Component(log, "mock-feed"),
	}
	for _, pair := range cfg.Pairs {
		var warm []candles.Candle
		if cfg.UseMockFeed {
			warm = mock.History(pair, cfg.WarmupLimit)
		} else if warm, err = history.GetCandles(ctx, pair, stratCfg.Timeframe, cfg.WarmupLimit); err != nil {
			log.Error().Err(err).Str("pair", pair).Msg("warm-up fetch failed")
			continue
		}
		if err := engine.Warmup(pair, warm); err != nil {
			log.Error().Err(err).Str("pair", pair).Msg("warm-up failed")
			continue
		}
		log.Info().Str("pair", pair).Int("candles", len(warm)).Msg("warm-up complete")
	}

	alerts := &monitor.Monitor{
		Bus:    bus,
		Sink:   monitor.LogSink{Logger: logger.Component(log, "alerts")},
		Logger: logger.Component(log, "monitor"),
	}
	alerts.Start(ctx)

	candleSub, unsubCandles := bus.Subscribe(events.EventCandle, 500)
	defer unsubCandles()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx, candleSub)
	}()

	if cfg.UseMockFeed {
		go mock.Run(ctx)
	} else {
		// Closed live candles go to the candle cache for later warm-ups.
		recorder := persistence.NewBatchWriter(queries, 50, 2*time.Second, logger.Component(log, "candle-recorder"))
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Error().Err(err).Msg("candle recorder final flush failed")
			}
		}()
		recordSub, unsubRecord := bus.Subscribe(events.EventCandle, 500)
		defer unsubRecord()
		go recorder.RecordCandles(ctx, recordSub)

		feed := market.Feed{
			Client:    client,
			Stream:    marketbinance.NewStreamClient(cfg.BinanceTestnet, logger.Component(log, "binance-ws")),
			Bus:       bus,
			Symbols:   cfg.Pairs,
			Interval:  stratCfg.Timeframe,
			Logger:    logger.Component(log, "feed"),
			PollEvery: cfg.PollEvery,
		}
		feed.Start(ctx)
		log.Info().Msg("binance feed started")
	}

	server := api.NewServer(api.ServerOptions{
		Bus:            bus,
		Engine:         engine,
		Signals:        queries,
		Metrics:        metrics,
		Logger:         log,
		JWTSecret:      cfg.JWTSecret,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AllowedOrigins: cfg.AllowedOrigins,
		Meta: api.SystemMeta{
			Pairs:       cfg.Pairs,
			UseMockFeed: cfg.UseMockFeed,
			Version:     buildVersion,
		},
	})
	if cfg.JWTSecret == "" {
		log.Warn().Msg("API_JWT_SECRET not set; /api routes are unauthenticated")
	}
	if err := server.Start(ctx, ":"+cfg.Port); err != nil {
		log.Error().Err(err).Msg("http server stopped")
	}
	stop()
	wg.Wait()
	log.Info().Uint64("dropped_events", bus.Dropped()).Msg("shutdown complete")
}

// runAnalyze evaluates a batch of historical candles per pair and records
// each run with its fired signals.
func runAnalyze(ctx context.Context, cfg *config.Config, engine *strategy.Engine, history *data.HistoricalDataService, log zerolog.Logger) error {
	timeframe := engine.Strategy().Config().Timeframe

	if cfg.CandlesCSV != "" {
		cs, err := data.LoadCSV(cfg.CandlesCSV)
		if err != nil {
			return err
		}
		// A CSV file carries one pair; it is attributed to the first configured one.
		return analyzeOne(ctx, engine, strategy.Metadata{Pair: cfg.Pairs[0], Timeframe: timeframe}, cs, log)
	}

	for _, pair := range cfg.Pairs {
		cs, err := history.GetCandles(ctx, pair, timeframe, cfg.WarmupLimit)
		if err != nil {
			return err
		}
		if err := analyzeOne(ctx, engine, strategy.Metadata{Pair: pair, Timeframe: timeframe}, cs, log); err != nil {
			return err
		}
	}
	return nil
}

func analyzeOne(ctx context.Context, engine *strategy.Engine, meta strategy.Metadata, cs []candles.Candle, log zerolog.Logger) error {
	out, summary, err := engine.AnalyzeHistory(ctx, meta, cs)
	if err != nil {
		return err
	}
	ev := log.Info().
		Str("run_id", summary.ID).
		Str("pair", summary.Pair).
		Int("rows", summary.Rows).
		Int("entries", summary.Entries).
		Int("exits", summary.Exits)
	if last := candles.LastRow(out); last != nil {
		ev = ev.Interface("last", last)
	}
	ev.Msg("analysis complete")
	return nil
}
