package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/picoscan/internal/corpus"
	"github.com/jonathan/picoscan/internal/types"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a decompiled application for one signature",
	Long:  "Builds the corpus of an application tree and prints every occurrence of a signature as path:line.",
	RunE:  runSearch,
}

var (
	searchInput    string
	searchPattern  string
	searchRegex    bool
	searchAliases  []string
	searchSkipDirs []string
)

func init() {
	searchCmd.Flags().StringVarP(&searchInput, "in", "i", "", "Decompiled application root directory (required)")
	searchCmd.Flags().StringVarP(&searchPattern, "pattern", "p", "", "Signature to search for (required)")
	searchCmd.Flags().BoolVar(&searchRegex, "regex", false, "Treat the pattern as an RE2 regular expression")
	searchCmd.Flags().StringSliceVar(&searchAliases, "alias", nil, "Additional literal spellings of the signature")
	searchCmd.Flags().StringSliceVar(&searchSkipDirs, "skip-dir", nil, "Directory names never descended into (default .git,original,build)")

	if err := searchCmd.MarkFlagRequired("in"); err != nil {
		panic(fmt.Sprintf("failed to mark in flag as required: %v", err))
	}
	if err := searchCmd.MarkFlagRequired("pattern"); err != nil {
		panic(fmt.Sprintf("failed to mark pattern flag as required: %v", err))
	}

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, _ []string) error {
	opts := corpus.DefaultOptions()
	if cmd.Flags().Changed("skip-dir") {
		opts.SkipDirs = searchSkipDirs
	}

	c, err := corpus.Build(context.Background(), searchInput, opts)
	if err != nil {
		return fmt.Errorf("failed to build corpus: %w", err)
	}

	locs, err := c.Search(types.APIPattern{Signature: searchPattern, Regex: searchRegex, Aliases: searchAliases})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	printLocations(os.Stdout, c, locs)
	if len(locs) == 0 {
		return fmt.Errorf("no occurrences of %q", searchPattern)
	}
	return nil
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func printLocations(w io.Writer, c *corpus.Corpus, locs []types.Location) {
	for _, loc := range locs {
		text := ""
		if e, ok := c.Entry(loc.Path); ok {
			text = e.LineText(loc.Line)
		}
		fmt.Fprintf(w, "%s:%d: %s\n", loc.Path, loc.Line, text)
	}
}
