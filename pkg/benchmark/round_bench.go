package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/opd-ai/dcnet/pkg/dcnet"
	"github.com/opd-ai/dcnet/pkg/health"
)

// BenchmarkRoundAssembly measures one full DC-net cell across every
// role: every client and trustee produces its contribution, the relay
// XOR-assembles each slot and strips the trap coding. The run closes
// with a request cell, the trap-secret exchange, and a health report
// bridged from the session's metrics.
// Target: < 250ms per cell (95th percentile) at 4 clients, 2 trustees.
func (s *Suite) BenchmarkRoundAssembly(ctx context.Context) error {
	s.log.Info("Running round assembly benchmark")

	const (
		numClients  = 4
		numTrustees = 2
		cellLength  = 64
		numCells    = 50
		targetP95   = 250 * time.Millisecond
	)

	harness, err := newSessionHarness(numClients, numTrustees, cellLength)
	if err != nil {
		return fmt.Errorf("benchmark session setup: %w", err)
	}

	runtime.GC()
	memBefore := GetMemorySnapshot()

	tracker := NewLatencyTracker(numCells)
	startTime := time.Now()

	payload := []byte("benchmark round payload")
	assembled := make(map[int][][]byte)
	var lastCellAt time.Time
	for i := 0; i < numCells; i++ {
		sender := i % numClients
		if err := harness.clients[sender].Send(harness.nymHexes[sender], payload); err != nil {
			return err
		}

		cellStart := time.Now()
		result, err := dcnet.RunCell(harness.clients, harness.trustees, harness.relay)
		if err != nil {
			return err
		}
		tracker.Record(time.Since(cellStart))
		lastCellAt = time.Now()
		for slot, cell := range result.Assembled {
			assembled[slot] = append(assembled[slot], cell)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	// One request cell exercises the slot-request path end to end.
	if err := harness.clients[0].Request([]string{harness.nymHexes[0]}); err != nil {
		return err
	}
	_, requestOK, err := dcnet.RunRequestCell(harness.clients, harness.trustees, harness.relay)
	if err != nil {
		return err
	}

	// Close the interval: publish and merge the trap secrets, then replay
	// every assembled cell through the composed disruption check.
	if err := dcnet.PublishAndStoreTrapSecrets(harness.trustees); err != nil {
		return err
	}
	trapsOK := true
	for _, tr := range harness.trustees {
		if !tr.CheckIntervalTraps(assembled) {
			trapsOK = false
		}
	}

	// Twice the processed-cell count leaves budget headroom, so the
	// interval checker only degrades if the accounting itself is off.
	overall := harness.healthReport(ctx, 2*numCells*numClients, lastCellAt, requestOK)

	totalDuration := time.Since(startTime)
	memAfter := GetMemorySnapshot()

	p50 := tracker.Percentile(0.50)
	p95 := tracker.Percentile(0.95)
	p99 := tracker.Percentile(0.99)
	max := tracker.Max()

	success := p95 <= targetP95 && trapsOK && overall.Status != health.StatusUnhealthy

	result := Result{
		Name:             "Round Assembly Performance",
		Duration:         totalDuration,
		MemoryAllocated:  memAfter.TotalAlloc - memBefore.TotalAlloc,
		MemoryInUse:      memAfter.Alloc,
		OperationsPerSec: float64(numCells) / totalDuration.Seconds(),
		TotalOperations:  numCells,
		P50Latency:       p50,
		P95Latency:       p95,
		P99Latency:       p99,
		MaxLatency:       max,
		Success:          success,
		AdditionalMetrics: map[string]interface{}{
			"clients":      numClients,
			"trustees":     numTrustees,
			"cell_length":  cellLength,
			"target_p95":   targetP95,
			"actual_p95":   p95,
			"traps_ok":     trapsOK,
			"request_ok":   requestOK,
			"health":       string(overall.Status),
			"meets_target": success,
		},
	}
	s.addResult(result)

	s.log.Info("Round assembly benchmark complete",
		"p95", p95, "ops_per_sec", result.OperationsPerSec, "health", string(overall.Status))
	return nil
}
