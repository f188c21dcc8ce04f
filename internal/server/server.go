// Package server provides the HTTP API for resolving support tickets.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/support-agent/internal/db"
	"github.com/jonathan/support-agent/internal/escalation"
	"github.com/jonathan/support-agent/internal/llm"
	"github.com/jonathan/support-agent/internal/retrieval"
)

// Config holds server configuration
type Config struct {
	Port          int
	APIKey        string
	KnowledgeBase string
	EscalationLog string
	DatabaseURL   string
	// JWTSecret enables bearer-token authentication on ticket routes when
	// non-empty. The health endpoint is always open.
	JWTSecret string
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	client     llm.Client
	index      *retrieval.Index
	sink       escalation.Sink
	store      *db.Store
	jwtService *JWTService
}

// New creates a server instance, building the LLM client, the retrieval
// index (when a knowledge base is configured), and the escalation sink.
func New(ctx context.Context, cfg Config) (*Server, error) {
	client, err := llm.NewClient(ctx, nil, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	s := &Server{
		client: client,
		sink:   escalation.NewCSVSink(cfg.EscalationLog),
	}

	if cfg.KnowledgeBase != "" {
		kb, err := retrieval.LoadKnowledgeBase(cfg.KnowledgeBase)
		if err != nil {
			return nil, err
		}
		embedder, err := llm.NewGeminiEmbedder(ctx, "", cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		s.index, err = retrieval.BuildIndex(ctx, kb, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to build retrieval index: %w", err)
		}
	}

	if cfg.DatabaseURL != "" {
		store, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to connect to database: %v", err)
			log.Printf("Continuing without run persistence...")
		} else {
			if err := store.EnsureSchema(ctx); err != nil {
				store.Close()
				return nil, err
			}
			s.store = store
		}
	}

	if cfg.JWTSecret != "" {
		s.jwtService = NewJWTService(cfg.JWTSecret, DefaultTokenTTL)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tickets", s.requireAuth(s.handleResolveTicket))
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout: a ticket blocks on its LLM calls
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start begins listening for requests and blocks until shutdown
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.store != nil {
		s.store.Close()
	}
	_ = s.client.Close()
	log.Println("Server stopped")
	return nil
}

// requireAuth wraps a handler with bearer-token validation when a JWT
// secret is configured; otherwise the handler is served as-is.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.jwtService == nil {
		return next
	}
	return AuthMiddleware(s.jwtService)(next).ServeHTTP
}
