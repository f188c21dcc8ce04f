package types

// Document is a single knowledge base entry.
type Document struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// RetrievalResult pairs a document with its similarity to a query.
type RetrievalResult struct {
	Document
	Similarity float64 `json:"similarity"`
}

// KnowledgeBase maps category names to their documentation entries.
type KnowledgeBase map[string][]string
