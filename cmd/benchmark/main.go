// Command benchmark runs the DC-net core's performance benchmarks: full
// round assembly, raw codec throughput, and steady-state memory use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/dcnet/pkg/benchmark"
	"github.com/opd-ai/dcnet/pkg/logger"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

func main() {
	// Parse command-line flags
	showVersion := flag.Bool("version", false, "Show version information")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	runRounds := flag.Bool("rounds", true, "Run round assembly benchmarks")
	runCodec := flag.Bool("codec", true, "Run codec throughput benchmarks")
	runMemory := flag.Bool("memory", true, "Run memory usage benchmarks")
	runAll := flag.Bool("all", false, "Run all benchmarks (overrides individual flags)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Global timeout for all benchmarks")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dcnet benchmark tool version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Initialize logger
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(level, os.Stdout)

	log.Info("Starting dcnet performance benchmarks",
		"version", version,
		"build_time", buildTime)

	// Create benchmark suite
	suite := benchmark.NewSuite(log)

	// Set up context with timeout and signal handling
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		log.Warn("Received interrupt signal, canceling benchmarks...")
		cancel()
	}()

	// Determine which benchmarks to run
	if *runAll {
		*runRounds = true
		*runCodec = true
		*runMemory = true
	}

	// Run selected benchmarks
	var hasErrors bool

	if *runRounds {
		log.Info("Running round assembly benchmarks...")
		if err := suite.BenchmarkRoundAssembly(ctx); err != nil {
			log.Error("Round assembly benchmark failed", "error", err)
			hasErrors = true
		}
	}

	if *runCodec {
		log.Info("Running codec throughput benchmarks...")
		if err := suite.BenchmarkCodecThroughput(ctx); err != nil {
			log.Error("Codec throughput benchmark failed", "error", err)
			hasErrors = true
		}
	}

	if *runMemory {
		log.Info("Running memory usage benchmarks...")
		if err := suite.BenchmarkMemoryUsage(ctx); err != nil {
			log.Error("Memory usage benchmark failed", "error", err)
			hasErrors = true
		}
	}

	// Print summary
	suite.PrintSummary()

	// Analyze results
	results := suite.Results()
	passCount := 0
	failCount := 0

	for _, r := range results {
		if r.Success {
			passCount++
		} else {
			failCount++
		}
	}

	// Print final status
	separator := "================================================================================"
	fmt.Println("\n" + separator)
	fmt.Printf("FINAL RESULTS: %d PASSED, %d FAILED (out of %d total)\n",
		passCount, failCount, len(results))
	fmt.Println(separator)

	fmt.Println("\n" + separator)
	fmt.Println("PERFORMANCE TARGETS EVALUATION")
	fmt.Println(separator)

	for _, r := range results {
		if target, ok := r.AdditionalMetrics["meets_target"].(bool); ok {
			status := "PASS"
			if !target {
				status = "FAIL"
			}
			fmt.Printf("%s: %s\n", status, r.Name)

			if targetP95, ok := r.AdditionalMetrics["target_p95"].(time.Duration); ok {
				fmt.Printf("  Target: p95 < %v\n", targetP95)
				fmt.Printf("  Actual: p95 = %v\n", r.P95Latency)
			}
			if targetPerSec, ok := r.AdditionalMetrics["target_per_sec"].(float64); ok {
				fmt.Printf("  Target: %.0f+ ops/sec\n", targetPerSec)
				fmt.Printf("  Actual: %.2f ops/sec\n", r.OperationsPerSec)
			}
			if targetMemory, ok := r.AdditionalMetrics["target_memory"].(string); ok {
				fmt.Printf("  Target: < %s\n", targetMemory)
				fmt.Printf("  Actual: %s\n", benchmark.FormatBytes(r.MemoryInUse))
			}
		}
	}
	fmt.Println(separator)

	if hasErrors || failCount > 0 {
		log.Error("Benchmarks completed with errors")
		os.Exit(1)
	}

	log.Info("All benchmarks completed successfully")
}
