package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jonathan/support-agent/internal/config"
	"github.com/jonathan/support-agent/internal/db"
	"github.com/jonathan/support-agent/internal/escalation"
	"github.com/jonathan/support-agent/internal/llm"
	"github.com/jonathan/support-agent/internal/observability"
	"github.com/jonathan/support-agent/internal/retrieval"
	"github.com/jonathan/support-agent/internal/types"
	"github.com/jonathan/support-agent/internal/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a support ticket end-to-end",
	Long: `Runs a ticket through the full resolution workflow: classification -> context retrieval -> drafting -> review, retrying rejected drafts and escalating to a human after repeated rejections.

A single ticket is given with --subject and --description. A batch of tickets is given with --tickets pointing at a JSON array of {subject, description} objects.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runResolveCmd,
}

var (
	resolveConfigPath  string
	resolveSubject     string
	resolveDescription string
	resolveTickets     string
	resolveKB          string
	resolveLog         string
	resolveAPIKey      string
	resolveDatabaseURL string
	resolveConcurrency int
	resolveVerbose     bool
)

func init() {
	// Config file flag (processed first)
	resolveCmd.Flags().StringVar(&resolveConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	resolveCmd.Flags().StringVarP(&resolveSubject, "subject", "s", "", "Ticket subject line")
	resolveCmd.Flags().StringVarP(&resolveDescription, "description", "d", "", "Ticket description")
	resolveCmd.Flags().StringVar(&resolveTickets, "tickets", "", "Path to JSON file with a batch of tickets (mutually exclusive with --subject/--description)")
	resolveCmd.Flags().StringVarP(&resolveKB, "kb", "k", "", "Path to knowledge base JSON file")
	resolveCmd.Flags().StringVar(&resolveLog, "escalation-log", "", "Path to the escalation CSV log")
	resolveCmd.Flags().IntVar(&resolveConcurrency, "concurrency", 0, "Concurrent tickets in batch mode")
	resolveCmd.Flags().BoolVarP(&resolveVerbose, "verbose", "v", false, "Print detailed debug information")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	resolveCmd.Flags().StringVar(&resolveAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")

	// Database URL for run persistence
	resolveCmd.Flags().StringVar(&resolveDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(resolveCmd)
}

func runResolveCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Step 1: Load config file if provided
	var cfg config.Config
	if resolveConfigPath != "" {
		loadedCfg, err := config.LoadConfig(resolveConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loadedCfg.Validate(); err != nil {
			return err
		}
		cfg = *loadedCfg
		if resolveVerbose {
			_, _ = fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", resolveConfigPath)
		}
	}

	// Step 2: Apply CLI overrides (command-line args take priority)
	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("kb") {
		cfg.KnowledgeBase = resolveKB
	}
	if cmd.Flags().Changed("escalation-log") {
		cfg.EscalationLog = resolveLog
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = resolveAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = resolveDatabaseURL
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = resolveConcurrency
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = resolveVerbose
	}

	// Step 3: Apply defaults for unset values
	cfg = cfg.MergeWithDefaults(config.Config{
		EscalationLog: "escalations.csv",
		Concurrency:   4,
	})

	// Step 4: Validate required fields
	single := resolveSubject != "" || resolveDescription != ""
	if single && resolveTickets != "" {
		return fmt.Errorf("--tickets and --subject/--description are mutually exclusive; provide only one")
	}
	if !single && resolveTickets == "" {
		return fmt.Errorf("either --subject/--description or --tickets must be provided")
	}
	if single && (resolveSubject == "" || resolveDescription == "") {
		return fmt.Errorf("both --subject and --description are required for a single ticket")
	}

	// Step 5: API Key handling
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}

	// Step 6: Database URL handling (optional)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	engine, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if single {
		return resolveOne(ctx, engine, types.NewTicket(resolveSubject, resolveDescription), cfg.Verbose)
	}
	return resolveBatch(ctx, engine, resolveTickets, cfg)
}

// buildEngine assembles the workflow engine and its dependencies from
// configuration. The returned cleanup closes every opened resource.
func buildEngine(ctx context.Context, cfg config.Config) (*workflow.Engine, func(), error) {
	client, err := llm.NewClient(ctx, nil, cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	closers := []func(){func() { _ = client.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var index *retrieval.Index
	if cfg.KnowledgeBase != "" {
		kb, err := retrieval.LoadKnowledgeBase(cfg.KnowledgeBase)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		embedder, err := llm.NewGeminiEmbedder(ctx, "", cfg.APIKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		closers = append(closers, func() { _ = embedder.Close() })
		index, err = retrieval.BuildIndex(ctx, kb, embedder)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to build retrieval index: %w", err)
		}
	} else {
		fmt.Println("No knowledge base configured; drafting without retrieved context")
	}

	opts := []workflow.Option{workflow.WithProgress(os.Stdout)}
	if cfg.DatabaseURL != "" {
		store, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Printf("Warning: failed to connect to database: %v\n", err)
			fmt.Println("Continuing without run persistence...")
		} else {
			if err := store.EnsureSchema(ctx); err != nil {
				store.Close()
				cleanup()
				return nil, nil, err
			}
			closers = append(closers, store.Close)
			opts = append(opts, workflow.WithStore(store))
		}
	}

	sink := escalation.NewCSVSink(cfg.EscalationLog)
	return workflow.NewEngine(client, index, sink, opts...), cleanup, nil
}

func resolveOne(ctx context.Context, engine *workflow.Engine, ticket *types.TicketState, verbose bool) error {
	state, err := engine.Resolve(ctx, ticket)
	if err != nil {
		return err
	}

	if verbose {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintTicket(ticket)
		printer.PrintDraft(ticket.Draft, ticket.Attempts+1)
		printer.PrintReview(ticket)
	}

	switch state {
	case workflow.StateApproved:
		fmt.Printf("\nTicket resolved (category: %s, attempts: %d)\n\n%s\n", ticket.Category, ticket.Attempts, ticket.Draft)
	case workflow.StateEscalated:
		fmt.Printf("\nTicket escalated to a human agent after %d rejected drafts\n", ticket.Attempts)
		fmt.Printf("Last reviewer feedback: %s\n", ticket.ReviewerFeedback)
	default:
		fmt.Printf("\nTicket finished in state: %s\n", state)
	}
	return nil
}

// resolveBatch runs a file of tickets through the workflow with bounded
// concurrency. One ticket's failure aborts the remaining work.
func resolveBatch(ctx context.Context, engine *workflow.Engine, path string, cfg config.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tickets file %s: %w", path, err)
	}

	var requests []types.TicketRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return fmt.Errorf("failed to parse tickets JSON: %w", err)
	}
	if len(requests) == 0 {
		return fmt.Errorf("tickets file %s contains no tickets", path)
	}
	for i, req := range requests {
		if err := req.Validate(); err != nil {
			return fmt.Errorf("ticket %d is invalid: %w", i+1, err)
		}
	}

	fmt.Printf("Resolving %d tickets (concurrency: %d)...\n", len(requests), cfg.Concurrency)

	var mu sync.Mutex
	resolved, escalated := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, req := range requests {
		g.Go(func() error {
			ticket := types.NewTicket(req.Subject, req.Description)
			state, err := engine.Resolve(gctx, ticket)
			if err != nil {
				return fmt.Errorf("ticket %d (%q): %w", i+1, req.Subject, err)
			}

			mu.Lock()
			defer mu.Unlock()
			switch state {
			case workflow.StateApproved:
				resolved++
			case workflow.StateEscalated:
				escalated++
			}
			fmt.Printf("[%d/%d] %q -> %s\n", i+1, len(requests), req.Subject, state)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\nBatch complete: %d resolved, %d escalated (log: %s)\n", resolved, escalated, cfg.EscalationLog)
	return nil
}
