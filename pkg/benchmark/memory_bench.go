package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/opd-ai/dcnet/pkg/dcnet"
)

// BenchmarkMemoryUsage measures steady-state memory while a session runs
// continuously: interval setup, then cells back to back until the
// measurement window closes.
// Target: < 50MB in use for a small session.
func (s *Suite) BenchmarkMemoryUsage(ctx context.Context) error {
	s.log.Info("Running memory usage benchmark")

	const (
		targetMemoryMB = 50
		targetMemory   = targetMemoryMB * 1024 * 1024
		numClients     = 4
		numTrustees    = 2
		cellLength     = 64
		numCells       = 100
	)

	harness, err := newSessionHarness(numClients, numTrustees, cellLength)
	if err != nil {
		return fmt.Errorf("benchmark session setup: %w", err)
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	runtime.GC()
	memBefore := GetMemorySnapshot()

	startTime := time.Now()

	payload := []byte("memory benchmark payload")
	cells := 0
	for i := 0; i < numCells; i++ {
		sender := i % numClients
		if err := harness.clients[sender].Send(harness.nymHexes[sender], payload); err != nil {
			return err
		}
		if _, err := dcnet.RunCell(harness.clients, harness.trustees, harness.relay); err != nil {
			return err
		}
		cells++

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	runtime.GC()
	memAfter := GetMemorySnapshot()
	totalDuration := time.Since(startTime)

	success := memAfter.Alloc <= targetMemory

	result := Result{
		Name:             "Steady-State Memory Usage",
		Duration:         totalDuration,
		MemoryAllocated:  memAfter.TotalAlloc - memBefore.TotalAlloc,
		MemoryInUse:      memAfter.Alloc,
		OperationsPerSec: float64(cells) / totalDuration.Seconds(),
		TotalOperations:  int64(cells),
		Success:          success,
		AdditionalMetrics: map[string]interface{}{
			"clients":       numClients,
			"trustees":      numTrustees,
			"cells":         cells,
			"target_memory": FormatBytes(targetMemory),
			"actual_memory": FormatBytes(memAfter.Alloc),
			"heap_objects":  memAfter.HeapObjects,
			"gc_runs":       memAfter.NumGC - memBefore.NumGC,
			"meets_target":  success,
		},
	}
	s.addResult(result)

	s.log.Info("Memory usage benchmark complete",
		"in_use", FormatBytes(memAfter.Alloc), "target", FormatBytes(targetMemory))
	return nil
}
