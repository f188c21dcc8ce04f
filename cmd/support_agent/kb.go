package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jonathan/support-agent/internal/fetch"
	"github.com/jonathan/support-agent/internal/llm"
	"github.com/jonathan/support-agent/internal/observability"
	"github.com/jonathan/support-agent/internal/retrieval"
	"github.com/jonathan/support-agent/internal/schemas"
	"github.com/jonathan/support-agent/internal/types"
	"github.com/jonathan/support-agent/internal/workflow"
	"github.com/spf13/cobra"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
	Long:  `Create, validate, grow, and query the knowledge base JSON file that backs context retrieval.`,
}

var (
	kbPath         string
	kbIngestURL    string
	kbIngestTag    string
	kbUseBrowser   bool
	kbSearchQuery  string
	kbSearchTag    string
	kbSearchTopK   int
	kbSearchAPIKey string
)

var kbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter knowledge base",
	RunE:  runKBInit,
}

var kbValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a knowledge base file against its schema",
	RunE:  runKBValidate,
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch a documentation page and add it to the knowledge base",
	Long:  `Downloads an article from a URL, extracts its text content, and appends it to the given category. Falls back to a headless browser for JavaScript-rendered pages when --use-browser is set.`,
	RunE:  runKBIngest,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query the knowledge base by similarity",
	RunE:  runKBSearch,
}

func init() {
	kbCmd.PersistentFlags().StringVarP(&kbPath, "kb", "k", "kb.json", "Path to knowledge base JSON file")

	kbIngestCmd.Flags().StringVarP(&kbIngestURL, "url", "u", "", "URL of the article to ingest (required)")
	kbIngestCmd.Flags().StringVarP(&kbIngestTag, "category", "c", string(types.CategoryGeneral), "Category to file the article under")
	kbIngestCmd.Flags().BoolVar(&kbUseBrowser, "use-browser", false, "Use headless browser for SPA sites (requires Chrome)")
	_ = kbIngestCmd.MarkFlagRequired("url")

	kbSearchCmd.Flags().StringVarP(&kbSearchQuery, "query", "q", "", "Search query (required)")
	kbSearchCmd.Flags().StringVarP(&kbSearchTag, "category", "c", string(types.CategoryGeneral), "Category to search within")
	kbSearchCmd.Flags().IntVar(&kbSearchTopK, "top-k", workflow.TopKDocuments, "Maximum results to return")
	kbSearchCmd.Flags().StringVar(&kbSearchAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	_ = kbSearchCmd.MarkFlagRequired("query")

	kbCmd.AddCommand(kbInitCmd, kbValidateCmd, kbIngestCmd, kbSearchCmd)
	rootCmd.AddCommand(kbCmd)
}

func runKBInit(_ *cobra.Command, _ []string) error {
	if _, err := os.Stat(kbPath); err == nil {
		return fmt.Errorf("refusing to overwrite existing knowledge base: %s", kbPath)
	}
	if err := writeKnowledgeBase(kbPath, retrieval.StarterKnowledgeBase()); err != nil {
		return err
	}
	fmt.Printf("Starter knowledge base written to %s\n", kbPath)
	return nil
}

func runKBValidate(_ *cobra.Command, _ []string) error {
	data, err := os.ReadFile(kbPath)
	if err != nil {
		return fmt.Errorf("failed to read knowledge base %s: %w", kbPath, err)
	}
	if err := schemas.ValidateKnowledgeBase(data); err != nil {
		return err
	}

	var kb types.KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return fmt.Errorf("failed to parse knowledge base JSON: %w", err)
	}

	docs := 0
	for _, entries := range kb {
		docs += len(entries)
	}
	fmt.Printf("%s is valid: %d categories, %d documents\n", kbPath, len(kb), docs)
	return nil
}

func runKBIngest(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	kb, err := retrieval.LoadKnowledgeBase(kbPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		kb = types.KnowledgeBase{}
	}

	fmt.Printf("Fetching %s...\n", kbIngestURL)
	text, err := fetchArticle(ctx, kbIngestURL, kbUseBrowser)
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("no article text could be extracted from %s", kbIngestURL)
	}

	kb[kbIngestTag] = append(kb[kbIngestTag], text)
	if err := writeKnowledgeBase(kbPath, kb); err != nil {
		return err
	}

	fmt.Printf("Added %d characters to category %q (%d documents total)\n", len(text), kbIngestTag, len(kb[kbIngestTag]))
	return nil
}

// fetchArticle downloads a page and extracts its readable text. Pages that
// render client-side yield too little text over plain HTTP, so the headless
// browser path re-fetches them when enabled.
func fetchArticle(ctx context.Context, url string, useBrowser bool) (string, error) {
	result, err := fetch.URL(ctx, url, nil)
	if err != nil {
		return "", err
	}

	text, err := fetch.ExtractArticleText(result.HTML, fetch.ArticleSelectors())
	if err != nil {
		return "", fmt.Errorf("failed to extract article text: %w", err)
	}

	if useBrowser && fetch.ShouldUseBrowser(text) {
		fmt.Println("Page appears to be JavaScript-rendered; retrying with headless browser...")
		html, err := fetch.BrowserSimple(ctx, url)
		if err != nil {
			return "", fmt.Errorf("browser fetch failed: %w", err)
		}
		text, err = fetch.ExtractArticleText(html, fetch.ArticleSelectors())
		if err != nil {
			return "", fmt.Errorf("failed to extract article text: %w", err)
		}
	}

	return text, nil
}

func runKBSearch(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	apiKey := kbSearchAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}

	kb, err := retrieval.LoadKnowledgeBase(kbPath)
	if err != nil {
		return err
	}

	embedder, err := llm.NewGeminiEmbedder(ctx, "", apiKey)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer embedder.Close()

	index, err := retrieval.BuildIndex(ctx, kb, embedder)
	if err != nil {
		return fmt.Errorf("failed to build retrieval index: %w", err)
	}

	results, err := index.Match(ctx, kbSearchTag, kbSearchQuery, kbSearchTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	observability.NewPrinter(os.Stdout).PrintRetrievalResults(results, kbSearchQuery)
	return nil
}

func writeKnowledgeBase(path string, kb types.KnowledgeBase) error {
	data, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode knowledge base: %w", err)
	}
	if err := schemas.ValidateKnowledgeBase(data); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write knowledge base %s: %w", path, err)
	}
	return nil
}
