package db

import (
	"context"
	"errors"
	"testing"
)

func newTestDB(t *testing.T) *Queries {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database.Queries()
}

func TestQueriesRequirePair(t *testing.T) {
	q := newTestDB(t)
	ctx := context.Background()

	t.Run("GetCandles requires pair", func(t *testing.T) {
		if _, err := q.GetCandles(ctx, "", "5m", 10); err != ErrPairRequired {
			t.Errorf("expected ErrPairRequired, got %v", err)
		}
	})

	t.Run("RecentSignals requires pair", func(t *testing.T) {
		if _, err := q.RecentSignals(ctx, "", 10); err != ErrPairRequired {
			t.Errorf("expected ErrPairRequired, got %v", err)
		}
	})

	t.Run("CreateRun requires pair", func(t *testing.T) {
		if err := q.CreateRun(ctx, Run{ID: "r1"}); err != ErrPairRequired {
			t.Errorf("expected ErrPairRequired, got %v", err)
		}
	})
}

func TestCandlesUpsertAndOrder(t *testing.T) {
	q := newTestDB(t)
	ctx := context.Background()

	batch := []Candle{
		{Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 3000, Close: 3},
		{Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 1000, Close: 1},
		{Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 2000, Close: 2},
		{Pair: "ETHUSDT", Timeframe: "5m", OpenTime: 1000, Close: 9},
	}
	if err := q.UpsertCandles(ctx, batch); err != nil {
		t.Fatalf("UpsertCandles: %v", err)
	}
	// Replace the newest candle.
	if err := q.UpsertCandles(ctx, []Candle{{Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 3000, Close: 30}}); err != nil {
		t.Fatalf("UpsertCandles replace: %v", err)
	}

	got, err := q.GetCandles(ctx, "BTCUSDT", "5m", 2)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[0].OpenTime != 2000 || got[1].OpenTime != 3000 {
		t.Fatalf("expected ascending newest two, got %d,%d", got[0].OpenTime, got[1].OpenTime)
	}
	if got[1].Close != 30 {
		t.Fatalf("expected replaced close 30, got %v", got[1].Close)
	}
}

func TestRunsAndSignals(t *testing.T) {
	q := newTestDB(t)
	ctx := context.Background()

	run := Run{ID: "run-1", Pair: "BTCUSDT", Timeframe: "5m", Strategy: "ema_cross", Rows: 100, Entries: 2, Exits: 1}
	if err := q.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	loaded, err := q.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if *loaded != run {
		t.Fatalf("run mismatch: got %+v want %+v", *loaded, run)
	}
	if _, err := q.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rsi := 31.5
	sigs := []Signal{
		{RunID: "run-1", Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 1000, Close: 10, RSI: &rsi, Enter: true},
		{RunID: "run-1", Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 2000, Close: 11, Exit: true},
		{Pair: "ETHUSDT", Timeframe: "5m", OpenTime: 2000, Close: 5, Enter: true},
	}
	if err := q.InsertSignals(ctx, sigs); err != nil {
		t.Fatalf("InsertSignals: %v", err)
	}

	got, err := q.RecentSignals(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(got))
	}
	if got[0].OpenTime != 2000 || !got[0].Exit || got[0].RSI != nil {
		t.Fatalf("unexpected newest signal %+v", got[0])
	}
	if got[1].RSI == nil || *got[1].RSI != rsi || !got[1].Enter {
		t.Fatalf("unexpected oldest signal %+v", got[1])
	}
}

func TestRecordRunIsAtomic(t *testing.T) {
	q := newTestDB(t)
	ctx := context.Background()

	run := Run{ID: "run-ok", Pair: "BTCUSDT", Timeframe: "5m", Strategy: "ema_cross", Rows: 60, Entries: 1}
	sigs := []Signal{{RunID: "run-ok", Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 1000, Close: 10, Enter: true}}
	if err := q.RecordRun(ctx, run, sigs); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if _, err := q.GetRun(ctx, "run-ok"); err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	// The second signal has no pair, so the whole run must roll back.
	bad := Run{ID: "run-bad", Pair: "BTCUSDT", Timeframe: "5m", Strategy: "ema_cross", Rows: 60, Entries: 1, Exits: 1}
	badSigs := []Signal{
		{RunID: "run-bad", Pair: "BTCUSDT", Timeframe: "5m", OpenTime: 2000, Close: 11, Enter: true},
		{RunID: "run-bad", Timeframe: "5m", OpenTime: 3000, Close: 12, Exit: true},
	}
	if err := q.RecordRun(ctx, bad, badSigs); !errors.Is(err, ErrPairRequired) {
		t.Fatalf("expected ErrPairRequired, got %v", err)
	}
	if _, err := q.GetRun(ctx, "run-bad"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed run was kept: %v", err)
	}
	got, err := q.RecentSignals(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "run-ok" {
		t.Fatalf("signals = %+v", got)
	}

	// A duplicate run id fails before any signal is written.
	if err := q.RecordRun(ctx, run, sigs); err == nil {
		t.Fatal("expected duplicate run id error")
	}
	if got, _ := q.RecentSignals(ctx, "BTCUSDT", 10); len(got) != 1 {
		t.Fatalf("duplicate run wrote signals: %d", len(got))
	}
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	for i := 0; i < 2; i++ {
		if err := ApplyMigrations(database); err != nil {
			t.Fatalf("ApplyMigrations pass %d: %v", i, err)
		}
	}
}
