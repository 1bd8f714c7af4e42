// Command dcnet-config-validator validates a session configuration file
// and can generate a minimal sample to start from.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opd-ai/dcnet/internal/sessionconfig"
	"github.com/opd-ai/dcnet/pkg/config"
	"github.com/opd-ai/dcnet/pkg/group"
)

var (
	version   = "0.1.0-dev"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to session configuration file to validate")
	generateSample := flag.Bool("generate", false, "Generate a sample configuration file")
	outputFile := flag.String("output", "", "Output file for generated configuration (default: stdout)")
	showVersion := flag.Bool("version", false, "Show version information")
	verbose := flag.Bool("verbose", false, "Show detailed configuration after a successful load")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dcnet-config-validator version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if *generateSample {
		if err := generateSampleConfig(*outputFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating sample config: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *configFile != "" {
		if err := validateConfigFile(*configFile, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	printUsage()
	os.Exit(1)
}

func printUsage() {
	fmt.Println("dcnet-config-validator - session configuration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dcnet-config-validator [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config <file>   Validate a session configuration file")
	fmt.Println("  -generate        Generate a sample configuration file")
	fmt.Println("  -output <file>   Output file for generated config (default: stdout)")
	fmt.Println("  -verbose         Show detailed configuration after a successful load")
	fmt.Println("  -version         Show version information")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  dcnet-config-validator -config session.json")
	fmt.Println("  dcnet-config-validator -generate -output session.json")
}

func validateConfigFile(path string, verbose bool) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file does not exist: %s", path)
	}

	g := group.New1024()
	cfg, err := sessionconfig.Load(path, g)
	if err != nil {
		return err
	}

	if verbose {
		printConfigSummary(cfg)
	}
	return nil
}

func printConfigSummary(cfg *config.Config) {
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Session ID:   %s\n", cfg.SessionID)
	fmt.Printf("  Group ID:     %s\n", cfg.GroupID)
	fmt.Printf("  Interval:     %d\n", cfg.Interval)
	fmt.Printf("  Clients:      %d\n", len(cfg.Clients))
	fmt.Printf("  Trustees:     %d\n", len(cfg.Trustees))
	fmt.Printf("  Slots:        %d\n", len(cfg.Slots))
	fmt.Printf("  Cell Length:  %d\n", cfg.CellLength)
	fmt.Printf("  Log Level:    %s\n", cfg.LogLevel)
	fmt.Printf("  Self Role:    %s (%s)\n", cfg.Self.Role, cfg.Self.ID)
}

func generateSampleConfig(outputPath string) error {
	sample := map[string]interface{}{
		"group_id": "dcnet-group-1",
		"interval": 0,
		"clients": []map[string]string{
			{"id": "client-0", "public_key": "<hex-encoded group element>"},
		},
		"trustees": []map[string]string{
			{"id": "trustee-0", "public_key": "<hex-encoded group element>"},
		},
		"relay": map[string]interface{}{
			"host": "127.0.0.1",
			"port": 9001,
		},
		"slots":       []string{"<hex-encoded nym public key>"},
		"cell_length": 256,
		"log_level":   "info",
		"self": map[string]string{
			"role":        "client",
			"id":          "client-0",
			"private_key": "<hex-encoded scalar, or use private_seed instead>",
		},
	}

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sample config: %w", err)
	}

	if outputPath == "" {
		fmt.Println(string(data))
		return nil
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	fmt.Printf("Sample configuration written to: %s\n", outputPath)
	return nil
}
