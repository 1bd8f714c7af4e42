// Package benchmark provides end-to-end performance benchmarks for the
// DC-net core: full round assembly across every role, raw codec
// throughput, and steady-state memory use.
package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/bits"
	"runtime"
	"sync"
	"time"

	"github.com/opd-ai/dcnet/pkg/codec"
	"github.com/opd-ai/dcnet/pkg/dcnet"
	"github.com/opd-ai/dcnet/pkg/group"
	"github.com/opd-ai/dcnet/pkg/health"
	"github.com/opd-ai/dcnet/pkg/logger"
	"github.com/opd-ai/dcnet/pkg/metrics"
)

// Result holds the results of a benchmark run
type Result struct {
	Name              string
	Duration          time.Duration
	MemoryAllocated   uint64 // Bytes allocated during benchmark
	MemoryInUse       uint64 // Bytes in use at end of benchmark
	OperationsPerSec  float64
	TotalOperations   int64
	P50Latency        time.Duration
	P95Latency        time.Duration
	P99Latency        time.Duration
	MaxLatency        time.Duration
	Success           bool
	Error             error
	AdditionalMetrics map[string]interface{}
}

// Suite provides a comprehensive benchmark suite
type Suite struct {
	log     *logger.Logger
	results []Result
}

// NewSuite creates a new benchmark suite
func NewSuite(log *logger.Logger) *Suite {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Suite{
		log:     log,
		results: make([]Result, 0),
	}
}

// MemorySnapshot captures current memory statistics
type MemorySnapshot struct {
	Timestamp   time.Time
	Alloc       uint64 // Bytes allocated and in use
	TotalAlloc  uint64 // Bytes allocated (cumulative)
	Sys         uint64 // Bytes from system
	NumGC       uint32 // Number of GC runs
	HeapAlloc   uint64 // Bytes in heap
	HeapSys     uint64 // Bytes from system for heap
	HeapObjects uint64 // Number of objects in heap
}

// GetMemorySnapshot returns current memory statistics
func GetMemorySnapshot() MemorySnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemorySnapshot{
		Timestamp:   time.Now(),
		Alloc:       m.Alloc,
		TotalAlloc:  m.TotalAlloc,
		Sys:         m.Sys,
		NumGC:       m.NumGC,
		HeapAlloc:   m.HeapAlloc,
		HeapSys:     m.HeapSys,
		HeapObjects: m.HeapObjects,
	}
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// LatencyTracker tracks operation latencies for percentile calculation
type LatencyTracker struct {
	mu        sync.Mutex
	latencies []time.Duration
}

// NewLatencyTracker creates a new latency tracker
func NewLatencyTracker(capacity int) *LatencyTracker {
	return &LatencyTracker{
		latencies: make([]time.Duration, 0, capacity),
	}
}

// Record records a latency measurement
// This method is thread-safe and can be called concurrently.
func (lt *LatencyTracker) Record(latency time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.latencies = append(lt.latencies, latency)
}

// Percentile calculates the specified percentile (0.0 to 1.0)
// This method is thread-safe and can be called concurrently.
func (lt *LatencyTracker) Percentile(p float64) time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(lt.latencies))
	copy(sorted, lt.latencies)

	quickSort(sorted, 0, len(sorted)-1)

	index := int(float64(len(sorted)-1) * p)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}

// Max returns the maximum latency
// This method is thread-safe and can be called concurrently.
func (lt *LatencyTracker) Max() time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.latencies) == 0 {
		return 0
	}
	max := lt.latencies[0]
	for _, l := range lt.latencies[1:] {
		if l > max {
			max = l
		}
	}
	return max
}

// Count returns the number of recorded latencies
// This method is thread-safe and can be called concurrently.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.latencies)
}

// quickSort implements quick sort for time.Duration slices
func quickSort(arr []time.Duration, low, high int) {
	if low < high {
		pi := partition(arr, low, high)
		quickSort(arr, low, pi-1)
		quickSort(arr, pi+1, high)
	}
}

func partition(arr []time.Duration, low, high int) int {
	pivot := arr[high]
	i := low - 1
	for j := low; j < high; j++ {
		if arr[j] < pivot {
			i++
			arr[i], arr[j] = arr[j], arr[i]
		}
	}
	arr[i+1], arr[high] = arr[high], arr[i+1]
	return i + 1
}

// sessionHarness holds a fully-synced in-memory session every benchmark
// drives: real keys, real keystreams, real trap codecs, and a shared
// metrics sink attached to every role.
type sessionHarness struct {
	clients  []*dcnet.Client
	trustees []*dcnet.Trustee
	relay    *dcnet.Relay
	nymHexes []string
	met      *metrics.Metrics
	request  codec.TunedParams
}

// newSessionHarness assembles a session of numClients clients (each
// owning one nym) and numTrustees trustees, wires a metrics sink into
// every role, and runs interval setup with the request codec enabled.
func newSessionHarness(numClients, numTrustees, cellLength int) (*sessionHarness, error) {
	g := group.New1024()

	clientSecrets := make([]group.Scalar, numClients)
	clientPublics := make([]group.Element, numClients)
	for i := range clientSecrets {
		s, err := g.RandomSecret(rand.Reader)
		if err != nil {
			return nil, err
		}
		clientSecrets[i] = s
		clientPublics[i] = g.PublicFromSecret(s)
	}
	trusteeSecrets := make([]group.Scalar, numTrustees)
	trusteePublics := make([]group.Element, numTrustees)
	for i := range trusteeSecrets {
		s, err := g.RandomSecret(rand.Reader)
		if err != nil {
			return nil, err
		}
		trusteeSecrets[i] = s
		trusteePublics[i] = g.PublicFromSecret(s)
	}

	nymOrder := make([]group.Element, numClients)
	nymHexes := make([]string, numClients)
	clients := make([]*dcnet.Client, numClients)
	for i := range clients {
		nymPriv, err := g.RandomSecret(rand.Reader)
		if err != nil {
			return nil, err
		}
		nymPub := g.PublicFromSecret(nymPriv)
		nymOrder[i] = nymPub
		nymHexes[i] = fmt.Sprintf("%x", nymPub.Bytes())
		clients[i] = dcnet.NewClient(g, nil, clientSecrets[i], trusteePublics, cellLength)
		clients[i].AddOwnNym(nymPriv)
	}
	trustees := make([]*dcnet.Trustee, numTrustees)
	for i := range trustees {
		trustees[i] = dcnet.NewTrustee(g, nil, trusteeSecrets[i], clientPublics, cellLength)
	}
	relay := dcnet.NewRelay(nil, cellLength)

	met := metrics.New()
	for _, c := range clients {
		c.SetMetrics(met)
	}
	for _, tr := range trustees {
		tr.SetMetrics(met)
	}
	relay.SetMetrics(met)

	request := codec.TunedParams{B: 64, R: 6}
	setup := dcnet.IntervalSetup{Interval: 1, NymOrder: nymOrder, Request: request}
	if err := dcnet.RunIntervalSetup(setup, trustees, clients, relay); err != nil {
		return nil, err
	}
	return &sessionHarness{
		clients:  clients,
		trustees: trustees,
		relay:    relay,
		nymHexes: nymHexes,
		met:      met,
		request:  request,
	}, nil
}

// healthReport bridges the harness's metrics snapshot and relay state
// into the health checkers and returns the monitor's overall view.
func (h *sessionHarness) healthReport(ctx context.Context, cellBudget int64, lastCellAt time.Time, requestOK bool) health.OverallHealth {
	snap := h.met.Snapshot()

	monitor := health.NewMonitor()
	monitor.RegisterChecker(health.NewIntervalHealthChecker(func() health.IntervalStats {
		return health.IntervalStats{
			CurrentInterval: uint64(snap.IntervalsStarted),
			CellsProcessed:  snap.CellsDecoded,
			CellBudget:      cellBudget,
			LastCellAt:      lastCellAt,
			StallThreshold:  time.Minute,
		}
	}))
	monitor.RegisterChecker(health.NewTrapHealthChecker(func() health.TrapStats {
		return health.TrapStats{
			ChecksRun:    snap.TrapChecksRun,
			ChecksFailed: snap.TrapChecksFailed,
		}
	}))
	monitor.RegisterChecker(health.NewRequestHealthChecker(func() health.RequestStats {
		set := 0
		for _, b := range h.relay.RequestAccumulator() {
			set += bits.OnesCount8(b)
		}
		return health.RequestStats{
			Grants:          snap.RequestGrants,
			AccumulatorFill: float64(set) / float64(h.request.B),
			TrapViolation:   !requestOK,
		}
	}))
	return monitor.Check(ctx)
}

// Results returns all benchmark results
func (s *Suite) Results() []Result {
	return s.results
}

// addResult adds a result to the suite
func (s *Suite) addResult(r Result) {
	s.results = append(s.results, r)
}

// PrintSummary prints a summary of all benchmark results
func (s *Suite) PrintSummary() {
	separator := "================================================================================"
	fmt.Println("\n" + separator)
	fmt.Println("BENCHMARK RESULTS SUMMARY")
	fmt.Println(separator)

	for _, r := range s.results {
		fmt.Printf("\n%s\n", r.Name)
		fmt.Printf("  Duration: %v\n", r.Duration)
		if r.TotalOperations > 0 {
			fmt.Printf("  Operations: %d (%.2f ops/sec)\n", r.TotalOperations, r.OperationsPerSec)
		}
		if r.P50Latency > 0 {
			fmt.Printf("  Latency (p50/p95/p99/max): %v / %v / %v / %v\n",
				r.P50Latency, r.P95Latency, r.P99Latency, r.MaxLatency)
		}
		if r.MemoryInUse > 0 {
			fmt.Printf("  Memory: %s in use, %s allocated\n",
				FormatBytes(r.MemoryInUse), FormatBytes(r.MemoryAllocated))
		}
		if r.Error != nil {
			fmt.Printf("  Error: %v\n", r.Error)
		} else {
			fmt.Printf("  Status: PASS\n")
		}

		if len(r.AdditionalMetrics) > 0 {
			fmt.Println("  Additional Metrics:")
			for k, v := range r.AdditionalMetrics {
				fmt.Printf("    %s: %v\n", k, v)
			}
		}
	}

	fmt.Println("\n" + separator)
}

// RunAll runs all benchmark suites
func (s *Suite) RunAll(ctx context.Context) error {
	s.log.Info("Starting comprehensive benchmark suite")

	if err := s.BenchmarkRoundAssembly(ctx); err != nil {
		s.log.Warn("Round assembly benchmark failed", "error", err)
	}

	if err := s.BenchmarkCodecThroughput(ctx); err != nil {
		s.log.Warn("Codec throughput benchmark failed", "error", err)
	}

	if err := s.BenchmarkMemoryUsage(ctx); err != nil {
		s.log.Warn("Memory usage benchmark failed", "error", err)
	}

	s.log.Info("Benchmark suite complete", "total_tests", len(s.results))
	return nil
}
