package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jonathan/support-agent/internal/server"
	"github.com/spf13/cobra"
)

var (
	tokenSecret string
	tokenCaller string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the REST API",
	Long:  `Generates an HS256 bearer token accepted by a server started with the same JWT secret.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HS256 secret (optional, defaults to JWT_SECRET env var)")
	tokenCmd.Flags().StringVar(&tokenCaller, "caller", "cli", "Caller identity embedded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", server.DefaultTokenTTL, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(_ *cobra.Command, _ []string) error {
	secret := tokenSecret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable or --secret flag is required")
	}

	token, err := server.NewJWTService(secret, tokenTTL).GenerateToken(tokenCaller)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}
