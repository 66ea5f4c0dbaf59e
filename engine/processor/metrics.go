package processor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/chunkr/chunkr/engine/core"
)

var (
	metricsOnce      sync.Once
	metricsMu        sync.Mutex
	metricsInitErr   error
	filesCounter     metric.Int64Counter
	splitCounter     metric.Int64Counter
	chunkCounter     metric.Int64Counter
	bytesInCounter   metric.Int64Counter
	chunkBytesWrites metric.Int64Counter
)

func recordFileProcessed(ctx context.Context, res *core.Result, size int64) {
	if err := ensureMetrics(); err != nil || filesCounter == nil {
		return
	}
	filesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(res.Status))))
	if size > 0 {
		bytesInCounter.Add(ctx, size)
	}
	if res.Status == core.StatusSplit {
		splitCounter.Add(ctx, 1)
	}
}

func recordChunkCreated(ctx context.Context, bytes int64) {
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, 1)
	if bytes > 0 {
		chunkBytesWrites.Add(ctx, bytes)
	}
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	filesCounter = nil
	splitCounter = nil
	chunkCounter = nil
	bytesInCounter = nil
	chunkBytesWrites = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("chunkr.processor")
		metricsInitErr = initCounters(meter)
	})
	return metricsInitErr
}

func initCounters(meter metric.Meter) error {
	var err error
	filesCounter, err = meter.Int64Counter(
		"chunkr_files_processed_total",
		metric.WithDescription("Number of files run through the pipeline by outcome status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	splitCounter, err = meter.Int64Counter(
		"chunkr_files_split_total",
		metric.WithDescription("Number of files that were split into chunks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		"chunkr_chunks_created_total",
		metric.WithDescription("Number of chunk files written"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	bytesInCounter, err = meter.Int64Counter(
		"chunkr_bytes_processed_total",
		metric.WithDescription("Input bytes examined by the pipeline"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}
	chunkBytesWrites, err = meter.Int64Counter(
		"chunkr_chunk_bytes_written_total",
		metric.WithDescription("Bytes written across all chunk files"),
		metric.WithUnit("By"),
	)
	return err
}
