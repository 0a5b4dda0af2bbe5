package clickhouse

import (
	"context"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
)

// BatchWriter buffers records and hands them to flushFunc in chunks of maxBatch
type BatchWriter[T any] struct {
	buffer    []T
	maxBatch  int
	flushFunc func(context.Context, []T) error
	written   int
}

// NewBatchWriter creates new batch writer
func NewBatchWriter[T any](maxBatch int, flushFunc func(context.Context, []T) error) *BatchWriter[T] {
	if maxBatch < 1 {
		maxBatch = 1
	}
	return &BatchWriter[T]{
		buffer:    make([]T, 0, maxBatch),
		maxBatch:  maxBatch,
		flushFunc: flushFunc,
	}
}

// Add buffers a record and flushes when the batch is full
func (bw *BatchWriter[T]) Add(ctx context.Context, record T) error {
	bw.buffer = append(bw.buffer, record)
	if len(bw.buffer) >= bw.maxBatch {
		return bw.Flush(ctx)
	}
	return nil
}

// Flush writes buffered records. The buffer is kept on failure.
func (bw *BatchWriter[T]) Flush(ctx context.Context) error {
	if len(bw.buffer) == 0 {
		return nil
	}
	if err := bw.flushFunc(ctx, bw.buffer); err != nil {
		logger.Error("failed to flush batch to ClickHouse",
			zap.Int("records", len(bw.buffer)),
			zap.Error(err),
		)
		return err
	}

	bw.written += len(bw.buffer)
	logger.Debug("flushed batch to ClickHouse", zap.Int("records", len(bw.buffer)))
	bw.buffer = make([]T, 0, bw.maxBatch)
	return nil
}

// Written returns the number of records flushed so far
func (bw *BatchWriter[T]) Written() int {
	return bw.written
}

// writeBatched sends items through a BatchWriter and returns how many were flushed
func writeBatched[T any](ctx context.Context, batch int, items []T, flush func(context.Context, []T) error) (int, error) {
	w := NewBatchWriter(batch, flush)
	for _, item := range items {
		if err := w.Add(ctx, item); err != nil {
			return w.Written(), err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return w.Written(), err
	}
	return w.Written(), nil
}
