package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/jonathan/picoscan/internal/config"
	"github.com/jonathan/picoscan/internal/db"
	"github.com/jonathan/picoscan/internal/logger"
	"github.com/jonathan/picoscan/internal/observability"
	"github.com/jonathan/picoscan/internal/sarif"
	"github.com/jonathan/picoscan/internal/scan"
	"github.com/jonathan/picoscan/internal/schemas"
	"github.com/jonathan/picoscan/internal/types"
	schemafiles "github.com/jonathan/picoscan/schemas"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a decompiled application for SDK privacy violations",
	Long: `Builds a text corpus from a decompiled application tree, matches the SDK signatures of a
PICO rule database against it and evaluates each used SDK's privacy rules.

The scan result is written as JSON to --out (stdout when omitted). The command exits non-zero
when a finding at or above --fail-on severity is reported.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runScanCmd,
}

var (
	scanConfigPath  string
	scanInput       string
	scanRules       string
	scanOutput      string
	scanSarif       string
	scanExtensions  []string
	scanSkipDirs    []string
	scanWorkers     int
	scanFailOn      string
	scanLogLevel    string
	scanLogJSON     bool
	scanVerbose     bool
	scanDatabaseURL string
)

func init() {
	// Config file flag (processed first)
	scanCmd.Flags().StringVar(&scanConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	scanCmd.Flags().StringVarP(&scanInput, "in", "i", "", "Decompiled application root directory (required)")
	scanCmd.Flags().StringVarP(&scanRules, "rules", "r", "", "PICO rule database, JSON or YAML (required)")
	scanCmd.Flags().StringVarP(&scanOutput, "out", "o", "", "Path to output ScanResult JSON file (default stdout)")
	scanCmd.Flags().StringVar(&scanSarif, "sarif", "", "Also write findings as a SARIF 2.1.0 report to this path")
	scanCmd.Flags().StringSliceVar(&scanExtensions, "ext", nil, "Only index files with these suffixes, e.g. .smali,.xml (default all files)")
	scanCmd.Flags().StringSliceVar(&scanSkipDirs, "skip-dir", nil, "Directory names never descended into (default .git,original,build)")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", 0, "Concurrent workers (default GOMAXPROCS)")
	scanCmd.Flags().StringVar(&scanFailOn, "fail-on", "", "Lowest finding severity that fails the scan: info, warning, critical or never (default info)")
	scanCmd.Flags().StringVar(&scanLogLevel, "log-level", "", "Log level: trace, debug, info, warn or error (default info)")
	scanCmd.Flags().BoolVar(&scanLogJSON, "log-json", false, "Write logs as JSON")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "Print a summary of detected SDKs and findings to stderr")

	// Database URL for scan history
	scanCmd.Flags().StringVar(&scanDatabaseURL, "database-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(scanCmd)
}

func runScanCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Step 1: Load config file if provided
	var cfg config.Config
	if scanConfigPath != "" {
		loadedCfg, err := config.LoadConfig(scanConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loadedCfg
	}

	// Step 2: Apply CLI overrides, only for flags that were explicitly set
	flags := cmd.Flags()
	if flags.Changed("in") {
		cfg.In = scanInput
	}
	if flags.Changed("rules") {
		cfg.Rules = scanRules
	}
	if flags.Changed("out") {
		cfg.Out = scanOutput
	}
	if flags.Changed("sarif") {
		cfg.Sarif = scanSarif
	}
	if flags.Changed("ext") {
		cfg.Extensions = scanExtensions
	}
	if flags.Changed("skip-dir") {
		cfg.SkipDirs = scanSkipDirs
	}
	if flags.Changed("workers") {
		cfg.Workers = scanWorkers
	}
	if flags.Changed("fail-on") {
		cfg.FailOn = scanFailOn
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = scanLogLevel
	}
	if flags.Changed("log-json") {
		cfg.LogJSON = scanLogJSON
	}
	if flags.Changed("verbose") {
		cfg.Verbose = scanVerbose
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = scanDatabaseURL
	}

	// Step 3: Apply defaults for unset values and validate
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if cfg.In == "" {
		return fmt.Errorf("--in is required (via flag or config)")
	}
	if cfg.Rules == "" {
		return fmt.Errorf("--rules is required (via flag or config)")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	log := logger.New("picoscan", logger.Options{Level: cfg.LogLevel, JSONFormat: cfg.LogJSON})

	// Step 4: Scan
	copts := cfg.CorpusOptions()
	copts.Logger = log.Named("corpus")
	result, err := scan.Run(ctx, scan.Options{
		Root:      cfg.In,
		RulesPath: cfg.Rules,
		Corpus:    copts,
		Workers:   cfg.Workers,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	// Step 5: Outputs
	if err := writeResult(result, cfg.Out, os.Stdout); err != nil {
		return err
	}
	if err := schemas.ValidateDocument(schemafiles.ScanResult, result); err != nil {
		log.Warn("scan result does not validate against schema", "error", err)
	}
	if cfg.Sarif != "" {
		if err := sarif.WriteFile(*result, cfg.Sarif); err != nil {
			return fmt.Errorf("failed to write SARIF report: %w", err)
		}
		log.Info("SARIF report written", "path", cfg.Sarif)
	}

	if cfg.DatabaseURL != "" {
		saveHistory(ctx, log, cfg.DatabaseURL, cfg.Rules, result)
	}

	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stderr)
		printer.PrintApp(result.App)
		printer.PrintSDKResults(result.SDKResults)
		printer.PrintFindings(result.Findings())
		printer.PrintSummary(result)
	}

	// Step 6: Exit status
	threshold, ok := cfg.FailThreshold()
	if !ok {
		return nil
	}
	if n := countAtLeast(result.Findings(), threshold); n > 0 {
		// Return error to indicate violations were found (exit code 1)
		return fmt.Errorf("scan found %d violation(s) at or above %s severity", n, threshold)
	}
	return nil
}

// writeResult writes the indented scan result to path, or to stdout when path is empty.
func writeResult(result *types.ScanResult, path string, stdout io.Writer) error {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scan result to JSON: %w", err)
	}
	jsonBytes = append(jsonBytes, '\n')

	if path == "" {
		_, err := stdout.Write(jsonBytes)
		return err
	}

	// Ensure output directory exists
	outputDir := filepath.Dir(path)
	if outputDir != "" && outputDir != "." {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write scan result to output file: %w", err)
	}
	return nil
}

// saveHistory stores the result in the scan history database. Failures are
// logged and never fail the scan.
func saveHistory(ctx context.Context, log hclog.Logger, databaseURL, rulesSource string, result *types.ScanResult) {
	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		log.Warn("failed to connect to database, continuing without scan history", "error", err)
		return
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Warn("failed to prepare scan history schema", "error", err)
		return
	}
	id, err := database.SaveScan(ctx, result, rulesSource)
	if err != nil {
		log.Warn("failed to save scan history", "error", err)
		return
	}
	log.Info("scan saved", "scan_id", id)
}

// countAtLeast counts the findings whose severity reaches the threshold.
func countAtLeast(findings []types.PVPFinding, threshold types.Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity.AtLeast(threshold) {
			n++
		}
	}
	return n
}

