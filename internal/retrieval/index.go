// Package retrieval ranks knowledge-base documents within a category by
// semantic similarity to a query.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jonathan/support-agent/internal/llm"
	"github.com/jonathan/support-agent/internal/types"
)

// MinSimilarity is the minimum cosine similarity for a document to be
// considered relevant. Results at or below it are dropped.
const MinSimilarity = 0.1

// indexedDocument pairs a document text with its cached embedding.
type indexedDocument struct {
	text   string
	vector []float32
}

// Index holds per-category document vectors. It is built once at startup,
// immutable afterwards, and safe for concurrent readers.
type Index struct {
	embedder llm.Embedder
	// categories holds index keys sorted alphabetically so category
	// resolution is deterministic regardless of load order.
	categories []string
	documents  map[string][]indexedDocument
}

// BuildIndex embeds every document in the knowledge base and returns a
// ready-to-query index. Embeddings are computed once and cached for the
// process lifetime.
func BuildIndex(ctx context.Context, kb types.KnowledgeBase, embedder llm.Embedder) (*Index, error) {
	if len(kb) == 0 {
		return nil, fmt.Errorf("knowledge base is empty")
	}

	idx := &Index{
		embedder:  embedder,
		documents: make(map[string][]indexedDocument, len(kb)),
	}

	for category := range kb {
		idx.categories = append(idx.categories, category)
	}
	sort.Strings(idx.categories)

	for _, category := range idx.categories {
		texts := kb[category]
		if len(texts) == 0 {
			continue
		}

		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed documents for category %q: %w", category, err)
		}

		docs := make([]indexedDocument, len(texts))
		for i, text := range texts {
			docs[i] = indexedDocument{text: text, vector: vectors[i]}
		}
		idx.documents[category] = docs
	}

	return idx, nil
}

// Categories returns the index's category keys in resolution order.
func (idx *Index) Categories() []string {
	out := make([]string, len(idx.categories))
	copy(out, idx.categories)
	return out
}

// Match embeds the query and returns up to topK documents from the resolved
// category ranked by cosine similarity, descending. Results with similarity
// at or below MinSimilarity are dropped. An unresolvable category yields an
// empty result, not an error.
func (idx *Index) Match(ctx context.Context, category, query string, topK int) ([]types.RetrievalResult, error) {
	matched, ok := idx.resolveCategory(category)
	if !ok {
		return nil, nil
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return idx.matchVector(matched, queryVec, topK), nil
}

// MatchVector ranks documents in the resolved category against a
// precomputed query vector. Exposed for callers that manage embeddings
// themselves.
func (idx *Index) MatchVector(category string, queryVec []float32, topK int) []types.RetrievalResult {
	matched, ok := idx.resolveCategory(category)
	if !ok {
		return nil
	}
	return idx.matchVector(matched, queryVec, topK)
}

func (idx *Index) matchVector(category string, queryVec []float32, topK int) []types.RetrievalResult {
	docs := idx.documents[category]

	results := make([]types.RetrievalResult, 0, len(docs))
	for _, doc := range docs {
		similarity := cosineSimilarity(queryVec, doc.vector)
		if similarity <= MinSimilarity {
			continue
		}
		results = append(results, types.RetrievalResult{
			Document:   types.Document{Category: category, Text: doc.text},
			Similarity: similarity,
		})
	}

	// Stable sort: ties keep original document order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// resolveCategory finds the index key for a requested category. Lookup is
// case-insensitive: the first exact match wins; failing that, the first key
// where either name contains the other wins.
func (idx *Index) resolveCategory(category string) (string, bool) {
	requested := strings.ToLower(strings.TrimSpace(category))
	if requested == "" {
		return "", false
	}

	for _, key := range idx.categories {
		if strings.ToLower(key) == requested {
			return key, true
		}
	}
	for _, key := range idx.categories {
		lower := strings.ToLower(key)
		if strings.Contains(lower, requested) || strings.Contains(requested, lower) {
			return key, true
		}
	}
	return "", false
}

// FormatContext renders retrieval results as a bounded, human-readable
// context block. The rendering is deterministic: identical inputs yield
// byte-identical output. An empty result list yields a single fallback
// sentence naming the query.
func FormatContext(results []types.RetrievalResult, query string) string {
	if len(results) == 0 {
		return fmt.Sprintf("No relevant documentation found for: '%s'", query)
	}

	var sb strings.Builder
	sb.WriteString("=== RELEVANT KNOWLEDGE BASE ===\n")
	sb.WriteString(fmt.Sprintf("Query: %s\n\n", query))

	for _, result := range results {
		sb.WriteString(fmt.Sprintf("[%s - %.1f%% relevant]\n", strings.ToUpper(result.Category), result.Similarity*100))
		sb.WriteString(result.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("=== END KNOWLEDGE BASE ===")
	return sb.String()
}

// cosineSimilarity computes the cosine similarity of two vectors. A zero
// vector or length mismatch yields 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
