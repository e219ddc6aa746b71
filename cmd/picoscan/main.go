// Package main provides the picoscan command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "picoscan",
	Short: "SDK privacy compliance scanner",
	Long: `picoscan searches a decompiled application tree for the API signatures of third-party SDKs,
decides which SDKs are in use, and evaluates per-SDK privacy rules (GDPR, CCPA, COPPA, ...)
to report the policy violation points (PVPs) they trigger.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
