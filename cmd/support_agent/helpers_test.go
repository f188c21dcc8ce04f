package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// getBinaryPath returns the path to the support_agent binary for testing
func getBinaryPath(t *testing.T) string {
	binaryName := "support_agent"
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", binaryName)
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'make build'", binaryPath)
	}

	return binaryPath
}

// runBinary executes the CLI binary and returns its combined output
func runBinary(t *testing.T, binaryPath string, args ...string) (string, error) {
	t.Helper()
	output, err := exec.Command(binaryPath, args...).CombinedOutput()
	return string(output), err
}
