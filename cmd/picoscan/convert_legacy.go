package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/picoscan/internal/rules"
)

var convertLegacyCmd = &cobra.Command{
	Use:   "convert-legacy",
	Short: "Convert a legacy PICO database to the current rule format",
	Long: `Reads a legacy PICO database whose SDK entries hold init, gdpr, us_p and coppa sections and writes
an equivalent rule database. Every privacy API of a law section becomes a required pattern with a
rule reporting "PVP #1" when the application never calls it.

The output format follows the --out extension: .yaml or .yml for YAML, JSON otherwise.`,
	RunE: runConvertLegacy,
}

var (
	convertLegacyInput  string
	convertLegacyOutput string
)

func init() {
	convertLegacyCmd.Flags().StringVarP(&convertLegacyInput, "in", "i", "", "Path to legacy database, JSON or YAML (required)")
	convertLegacyCmd.Flags().StringVarP(&convertLegacyOutput, "out", "o", "", "Path to output rule database (required)")

	if err := convertLegacyCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}
	if err := convertLegacyCmd.MarkFlagRequired("out"); err != nil {
		panic(fmt.Sprintf("failed to mark out flag as required: %v", err))
	}

	rootCmd.AddCommand(convertLegacyCmd)
}

func runConvertLegacy(_ *cobra.Command, _ []string) error {
	content, err := os.ReadFile(convertLegacyInput)
	if err != nil {
		return fmt.Errorf("failed to read legacy database: %w", err)
	}

	db, warnings, err := rules.ConvertLegacy(content)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	for _, w := range warnings {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	out, err := encodeDatabase(db, convertLegacyOutput)
	if err != nil {
		return err
	}
	if err := os.WriteFile(convertLegacyOutput, out, 0644); err != nil {
		return fmt.Errorf("failed to write rule database: %w", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Converted %d SDKs\n", db.Len())
	_, _ = fmt.Fprintf(os.Stdout, "Output: %s\n", convertLegacyOutput)
	return nil
}

// encodeDatabase serializes db in the format implied by the output path.
func encodeDatabase(db *rules.Database, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		out, err := yaml.Marshal(db)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rule database to YAML: %w", err)
		}
		return out, nil
	default:
		out, err := json.MarshalIndent(db, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rule database to JSON: %w", err)
		}
		return append(out, '\n'), nil
	}
}
