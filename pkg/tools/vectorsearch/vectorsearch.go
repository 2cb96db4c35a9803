// Package vectorsearch provides the search_docs capability: semantic search
// over a document collection. Queries are embedded through an
// OpenAI-compatible endpoint and matched in a Qdrant collection.
package vectorsearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/tools"
)

// Name is the capability name the planner and agents refer to.
const Name = "search_docs"

// Backend embeds a query and searches one collection.
type Backend struct {
	embedder   Embedder
	index      Index
	collection string
	topK       int
}

// New creates a backend. A non-positive topK defaults to 5.
func New(embedder Embedder, index Index, collection string, topK int) *Backend {
	if topK <= 0 {
		topK = 5
	}
	return &Backend{embedder: embedder, index: index, collection: collection, topK: topK}
}

// Capability describes the backend as a registry entry.
func Capability(b *Backend) tools.Capability {
	return tools.Capability{
		Name:        Name,
		Description: "Search the document store for relevant passages. Use this to find supporting information.",
		Kind:        tools.KindVector,
		Vector:      b,
	}
}

// Search returns up to k passages (the configured top-k when k <= 0),
// numbered and separated by blank lines.
func (b *Backend) Search(ctx context.Context, query string, k int) (string, error) {
	if k <= 0 {
		k = b.topK
	}

	vectors, err := b.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return "", fmt.Errorf("embedding query: empty vector")
	}

	matches, err := b.index.Search(ctx, b.collection, vectors[0], k)
	if err != nil {
		return "", err
	}
	debug.Log("tools", "vector search", "collection", b.collection, "matches", len(matches))

	if len(matches) == 0 {
		return "No relevant documents found.", nil
	}
	if len(matches) > k {
		matches = matches[:k]
	}

	parts := make([]string, 0, len(matches))
	for i, m := range matches {
		entry := fmt.Sprintf("[%d] %s", i+1, m.Content)
		if src := m.Metadata["source"]; src != "" {
			entry += " (source: " + src + ")"
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, "\n\n"), nil
}
