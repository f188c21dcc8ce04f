package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/support-agent/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort      int
	serveKB        string
	serveLog       string
	serveJWTSecret string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for resolving support tickets.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveKB, "kb", "", "Path to knowledge base JSON file")
	serveCmd.Flags().StringVar(&serveLog, "escalation-log", "escalations.csv", "Path to the escalation CSV log")
	serveCmd.Flags().StringVar(&serveJWTSecret, "jwt-secret", "", "HS256 secret enabling bearer auth (optional, defaults to JWT_SECRET env var)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Get API key from environment
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	jwtSecret := serveJWTSecret
	if !cmd.Flags().Changed("jwt-secret") {
		jwtSecret = os.Getenv("JWT_SECRET")
	}

	cfg := server.Config{
		Port:          servePort,
		APIKey:        apiKey,
		KnowledgeBase: serveKB,
		EscalationLog: serveLog,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     jwtSecret,
	}

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
