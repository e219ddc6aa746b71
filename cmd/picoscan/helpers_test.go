package main

import (
	"os"
	"path/filepath"
	"testing"
)

// getBinaryPath returns the path to the picoscan binary for CLI tests
func getBinaryPath(t *testing.T) string {
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", "picoscan")
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/picoscan ./cmd/picoscan'", binaryPath)
	}

	return binaryPath
}
