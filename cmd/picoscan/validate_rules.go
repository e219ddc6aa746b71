package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/picoscan/internal/matcher"
	"github.com/jonathan/picoscan/internal/rules"
)

var validateRulesCmd = &cobra.Command{
	Use:   "validate-rules",
	Short: "Validate a PICO rule database",
	Long: `Loads a PICO rule database, validating it against the embedded schema and checking that every
rule condition references a declared pattern. Regex patterns that fail to compile are reported
as warnings; they never match during a scan.`,
	RunE: runValidateRules,
}

var (
	validateRulesPath   string
	validateRulesOutput string
)

func init() {
	validateRulesCmd.Flags().StringVarP(&validateRulesPath, "rules", "r", "", "Path to rule database, JSON or YAML (required)")
	validateRulesCmd.Flags().StringVarP(&validateRulesOutput, "out", "o", "", "Write the normalized database as JSON to this path (optional)")

	if err := validateRulesCmd.MarkFlagRequired("rules"); err != nil {
		panic(fmt.Sprintf("failed to mark rules flag as required: %v", err))
	}

	rootCmd.AddCommand(validateRulesCmd)
}

func runValidateRules(_ *cobra.Command, _ []string) error {
	db, err := rules.Load(validateRulesPath)
	if err != nil {
		var schemaErr *rules.SchemaError
		if errors.As(err, &schemaErr) {
			return fmt.Errorf("validation failed: %w", err)
		}
		return fmt.Errorf("failed to load rule database: %w", err)
	}

	defs := db.AllDefinitions()
	patterns, ruleCount := 0, 0
	for _, def := range defs {
		patterns += len(def.APIPatterns)
		ruleCount += len(def.MetadataRules)
	}

	for _, perr := range matcher.Compile(defs, matcher.Options{}).Errors() {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", perr)
	}

	if validateRulesOutput != "" {
		jsonBytes, err := json.MarshalIndent(db, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal rule database to JSON: %w", err)
		}
		if err := os.WriteFile(validateRulesOutput, jsonBytes, 0644); err != nil {
			return fmt.Errorf("failed to write rule database to output file: %w", err)
		}
	}

	_, _ = fmt.Fprintf(os.Stdout, "Rule database valid: %d SDKs, %d patterns, %d rules\n", len(defs), patterns, ruleCount)
	return nil
}
