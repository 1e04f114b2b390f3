package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrPairRequired = errors.New("pair is required")
	ErrNotFound     = errors.New("record not found")
)

// Queries groups the statements used by the engine and the API.
type Queries struct {
	db *sql.DB
}

// NewQueries creates a Queries instance.
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// ----------------------------------------
// Candle Queries
// ----------------------------------------

// UpsertCandles stores candles, replacing rows with the same pair, timeframe and open time.
func (q *Queries) UpsertCandles(ctx context.Context, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (pair, timeframe, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair, timeframe, open_time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if c.Pair == "" {
			return ErrPairRequired
		}
		if _, err := stmt.ExecContext(ctx, c.Pair, c.Timeframe, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("upsert candle %s@%d: %w", c.Pair, c.OpenTime, err)
		}
	}
	return tx.Commit()
}

// GetCandles returns the newest limit candles for pair and timeframe, oldest first.
func (q *Queries) GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]Candle, error) {
	if pair == "" {
		return nil, ErrPairRequired
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT pair, timeframe, open_time, open, high, low, close, volume FROM (
			SELECT * FROM candles
			WHERE pair = ? AND timeframe = ?
			ORDER BY open_time DESC
			LIMIT ?
		) ORDER BY open_time ASC
	`, pair, timeframe, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Pair, &c.Timeframe, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Run and Signal Queries
// ----------------------------------------

// CreateRun records a batch analysis.
func (q *Queries) CreateRun(ctx context.Context, r Run) error {
	if r.Pair == "" {
		return ErrPairRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, pair, timeframe, strategy, row_count, entries, exits)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Pair, r.Timeframe, r.Strategy, r.Rows, r.Entries, r.Exits)
	return err
}

// GetRun loads a run by id.
func (q *Queries) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := q.db.QueryRowContext(ctx, `
		SELECT id, pair, timeframe, strategy, row_count, entries, exits
		FROM analysis_runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Pair, &r.Timeframe, &r.Strategy, &r.Rows, &r.Entries, &r.Exits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertSignals stores signal rows in one transaction.
func (q *Queries) InsertSignals(ctx context.Context, sigs []Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertSignals(ctx, tx, sigs); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordRun stores a run and its signals in one transaction; on any error
// neither is kept.
func (q *Queries) RecordRun(ctx context.Context, r Run, sigs []Signal) error {
	if r.Pair == "" {
		return ErrPairRequired
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, pair, timeframe, strategy, row_count, entries, exits)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Pair, r.Timeframe, r.Strategy, r.Rows, r.Entries, r.Exits); err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	if err := insertSignals(ctx, tx, sigs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSignals(ctx context.Context, tx *sql.Tx, sigs []Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals (run_id, pair, timeframe, open_time, close, rsi, enter, exit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range sigs {
		if s.Pair == "" {
			return ErrPairRequired
		}
		var rsi sql.NullFloat64
		if s.RSI != nil {
			rsi = sql.NullFloat64{Float64: *s.RSI, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, s.RunID, s.Pair, s.Timeframe, s.OpenTime, s.Close, rsi, s.Enter, s.Exit); err != nil {
			return fmt.Errorf("insert signal %s@%d: %w", s.Pair, s.OpenTime, err)
		}
	}
	return nil
}

// RecentSignals returns up to limit signals for pair, newest first.
func (q *Queries) RecentSignals(ctx context.Context, pair string, limit int) ([]Signal, error) {
	if pair == "" {
		return nil, ErrPairRequired
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, run_id, pair, timeframe, open_time, close, rsi, enter, exit
		FROM signals
		WHERE pair = ?
		ORDER BY open_time DESC, id DESC
		LIMIT ?
	`, pair, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var (
			s   Signal
			rsi sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.RunID, &s.Pair, &s.Timeframe, &s.OpenTime, &s.Close, &rsi, &s.Enter, &s.Exit); err != nil {
			return nil, err
		}
		if rsi.Valid {
			v := rsi.Float64
			s.RSI = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
