package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/picoscan/internal/db"
	"github.com/jonathan/picoscan/internal/observability"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored scan results",
	Long:  "Lists, shows and deletes scans saved to the PostgreSQL scan history by 'picoscan scan'.",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scans, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Print a stored scan result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <scan-id>",
	Short: "Delete a stored scan and its findings",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var (
	historyDatabaseURL string
	historyApp         string
	historyStatus      string
	historyLimit       int
	historyFindings    bool
)

func init() {
	historyCmd.PersistentFlags().StringVar(&historyDatabaseURL, "database-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")

	historyListCmd.Flags().StringVar(&historyApp, "app", "", "Only scans whose application package contains this text")
	historyListCmd.Flags().StringVar(&historyStatus, "status", "", "Only scans with this status: clean or violations")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum number of scans to list")

	historyShowCmd.Flags().BoolVar(&historyFindings, "findings", false, "Print only the stored findings")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func connectHistory(ctx context.Context) (*db.DB, error) {
	databaseURL := historyDatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or --database-url flag is required")
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func parseScanID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid scan id %q: %w", arg, err)
	}
	return id, nil
}

func runHistoryList(_ *cobra.Command, _ []string) error {
	if historyStatus != "" && historyStatus != db.StatusClean && historyStatus != db.StatusViolations {
		return fmt.Errorf("--status must be %q or %q", db.StatusClean, db.StatusViolations)
	}

	ctx := context.Background()
	database, err := connectHistory(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	scans, err := database.ListScans(ctx, db.ScanFilters{AppPackage: historyApp, Status: historyStatus, Limit: historyLimit})
	if err != nil {
		return err
	}

	observability.NewPrinter(os.Stdout).PrintHistory(scans)
	return nil
}

func runHistoryShow(_ *cobra.Command, args []string) error {
	id, err := parseScanID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := connectHistory(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	var doc any
	if historyFindings {
		findings, err := database.ListFindings(ctx, id)
		if err != nil {
			return err
		}
		doc = findings
	} else {
		result, err := database.GetScan(ctx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("scan %s not found", id)
		}
		doc = result
	}

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, string(jsonBytes))
	return nil
}

func runHistoryDelete(_ *cobra.Command, args []string) error {
	id, err := parseScanID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := connectHistory(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	deleted, err := database.DeleteScan(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("scan %s not found", id)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Deleted scan %s\n", id)
	return nil
}
