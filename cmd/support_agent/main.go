// Package main provides the entry point for the support ticket agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "support_agent",
	Short: "Automated customer support ticket resolution",
	Long:  "Support Agent classifies incoming tickets, retrieves knowledge base context, drafts responses, and reviews them before sending - escalating to a human when automated drafting fails.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
