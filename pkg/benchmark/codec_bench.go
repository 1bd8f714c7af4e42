package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/opd-ai/dcnet/pkg/codec"
)

// BenchmarkCodecThroughput measures raw inversion-codec throughput:
// encode, decode, and check over a stream of cells, the per-cell crypto
// work every client and trustee repeats each round.
// Target: 2000+ encode/decode pairs per second at the default cell size.
func (s *Suite) BenchmarkCodecThroughput(ctx context.Context) error {
	s.log.Info("Running codec throughput benchmark")

	const (
		cellLength   = 256
		numCells     = 2000
		targetPerSec = 2000.0
	)

	params := codec.NewInversionParams(cellLength)
	seeds := [][]byte{[]byte("bench-seed-1"), []byte("bench-seed-2"), []byte("bench-seed-3")}
	encoder := codec.NewInversionCodec(params, seeds)
	decoder := codec.NewInversionCodec(params, seeds)
	checker := codec.NewInversionCodec(params, seeds)

	payload := make([]byte, cellLength)
	for i := range payload {
		payload[i] = byte(i)
	}

	runtime.GC()
	memBefore := GetMemorySnapshot()

	tracker := NewLatencyTracker(numCells)
	startTime := time.Now()

	for i := 0; i < numCells; i++ {
		opStart := time.Now()
		encoded, err := encoder.Encode(payload)
		if err != nil {
			return fmt.Errorf("benchmark encode: %w", err)
		}
		if !checker.Check(encoded) {
			return fmt.Errorf("benchmark check rejected an honest cell at index %d", i)
		}
		decoded, err := decoder.Decode(encoded)
		if err != nil {
			return fmt.Errorf("benchmark decode: %w", err)
		}
		if decoded[0] != payload[0] {
			return fmt.Errorf("benchmark round-trip mismatch at index %d", i)
		}
		tracker.Record(time.Since(opStart))

		if i%256 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}

	totalDuration := time.Since(startTime)
	memAfter := GetMemorySnapshot()

	opsPerSec := float64(numCells) / totalDuration.Seconds()
	success := opsPerSec >= targetPerSec

	result := Result{
		Name:             "Inversion Codec Throughput",
		Duration:         totalDuration,
		MemoryAllocated:  memAfter.TotalAlloc - memBefore.TotalAlloc,
		MemoryInUse:      memAfter.Alloc,
		OperationsPerSec: opsPerSec,
		TotalOperations:  numCells,
		P50Latency:       tracker.Percentile(0.50),
		P95Latency:       tracker.Percentile(0.95),
		P99Latency:       tracker.Percentile(0.99),
		MaxLatency:       tracker.Max(),
		Success:          success,
		AdditionalMetrics: map[string]interface{}{
			"cell_length":    cellLength,
			"seeds":          len(seeds),
			"target_per_sec": targetPerSec,
			"meets_target":   success,
		},
	}
	s.addResult(result)

	s.log.Info("Codec throughput benchmark complete", "ops_per_sec", opsPerSec)
	return nil
}
