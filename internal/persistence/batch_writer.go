package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"emacross-core/internal/events"
	"emacross-core/pkg/db"
)

// CandleWriter stores a batch of candles in one transaction.
type CandleWriter interface {
	UpsertCandles(ctx context.Context, cs []db.Candle) error
}

// BatchWriter batches candle writes to keep the live feed off the database
// hot path.
type BatchWriter struct {
	store       CandleWriter
	buffer      []db.Candle
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	closeErr    error // result of the final flush
	wg          sync.WaitGroup
	metrics     BatchWriterMetrics
	log         zerolog.Logger
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter creates a batch writer with specified parameters.
// maxSize: max buffered candles before auto-flush
// interval: time-based flush interval
func NewBatchWriter(store CandleWriter, maxSize int, interval time.Duration, logger zerolog.Logger) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		store:       store,
		buffer:      make([]db.Candle, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
		log:         logger,
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write adds a candle to the batch.
func (bw *BatchWriter) Write(c db.Candle) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, c)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		_ = bw.Flush()
	}
}

// Flush immediately writes all buffered candles.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}

	batch := bw.buffer
	bw.buffer = make([]db.Candle, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(batch)
}

func (bw *BatchWriter) executeBatch(batch []db.Candle) error {
	atomic.AddUint64(&bw.metrics.TotalWrites, uint64(len(batch)))
	atomic.AddUint64(&bw.metrics.TotalBatches, 1)
	bw.mu.Lock()
	bw.metrics.LastBatchSize = len(batch)
	bw.metrics.LastFlushTime = time.Now()
	bw.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bw.store.UpsertCandles(ctx, batch); err != nil {
		atomic.AddUint64(&bw.metrics.TotalErrors, 1)
		bw.log.Error().Err(err).Int("candles", len(batch)).Msg("batch write failed")
		return err
	}

	bw.log.Debug().Int("candles", len(batch)).Msg("batch flushed")
	return nil
}

// backgroundFlush periodically flushes the buffer.
func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = bw.Flush()
		case <-bw.done:
			// Final flush before shutdown
			bw.closeErr = bw.Flush()
			return
		}
	}
}

// Pending returns the number of buffered candles.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// GetMetrics returns the current metrics for the batch writer.
func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	bw.mu.Lock()
	size, at := bw.metrics.LastBatchSize, bw.metrics.LastFlushTime
	bw.mu.Unlock()
	return BatchWriterMetrics{
		TotalWrites:   atomic.LoadUint64(&bw.metrics.TotalWrites),
		TotalBatches:  atomic.LoadUint64(&bw.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&bw.metrics.TotalErrors),
		LastBatchSize: size,
		LastFlushTime: at,
	}
}

// Close flushes what is left, stops the background loop and returns the
// error of that last flush. Later calls return the same error.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() {
		close(bw.done)
		bw.wg.Wait()
	})
	return bw.closeErr
}

// RecordCandles writes every closed candle from stream until ctx is done
// or the stream closes. Forming candles are skipped.
func (bw *BatchWriter) RecordCandles(ctx context.Context, stream <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			ev, ok := msg.(events.CandleEvent)
			if !ok || !ev.Closed || ev.Pair == "" {
				continue
			}
			bw.Write(db.Candle{
				Pair:      ev.Pair,
				Timeframe: ev.Timeframe,
				OpenTime:  ev.Candle.Time.UnixMilli(),
				Open:      ev.Candle.Open,
				High:      ev.Candle.High,
				Low:       ev.Candle.Low,
				Close:     ev.Candle.Close,
				Volume:    ev.Candle.Volume,
			})
		}
	}
}
