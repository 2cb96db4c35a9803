package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/relay/pkg/config"
	"github.com/rhuss/relay/pkg/tools"
	"github.com/rhuss/relay/pkg/tools/mcp"
	"github.com/rhuss/relay/pkg/tools/sqlquery"
	"github.com/rhuss/relay/pkg/tools/vectorsearch"
)

// BuildCapabilities registers every capability whose data source is
// configured: query_facts when a SQL DSN is set, search_docs when a Qdrant
// URL is set, and each tool of the configured MCP servers. Embeddings fall
// back to the LLM endpoint and key when no embedding URL is given.
//
// The caller owns the returned registry and must Close it.
func BuildCapabilities(ctx context.Context, cfg config.ToolsConfig, llm config.LLMConfig) (*tools.Registry, error) {
	reg := tools.NewRegistry()

	if cfg.SQL.DSN != "" {
		pool, err := sqlquery.Open(ctx, cfg.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening query_facts database: %w", err)
		}
		reg.OnClose(poolCloser{pool})
		if err := reg.Register(sqlquery.Capability(sqlquery.New(pool, cfg.SQL.MaxRows))); err != nil {
			reg.Close()
			return nil, err
		}
	}

	if cfg.Vector.QdrantURL != "" {
		embedURL := cfg.Vector.EmbeddingURL
		if embedURL == "" {
			embedURL = llm.BaseURL
		}
		backend := vectorsearch.New(
			vectorsearch.NewOpenAIEmbedder(embedURL, cfg.Vector.EmbeddingModel, llm.APIKey),
			vectorsearch.NewQdrant(cfg.Vector.QdrantURL),
			cfg.Vector.Collection,
			cfg.Vector.TopK,
		)
		if err := reg.Register(vectorsearch.Capability(backend)); err != nil {
			reg.Close()
			return nil, err
		}
	}

	if len(cfg.MCP.Servers) > 0 {
		servers := make([]mcp.ServerConfig, 0, len(cfg.MCP.Servers))
		for _, s := range cfg.MCP.Servers {
			servers = append(servers, mcp.ServerConfig{
				Name:      s.Name,
				Transport: s.Transport,
				URL:       s.URL,
				Headers:   s.Headers,
			})
		}
		if err := mcp.Attach(ctx, reg, servers); err != nil {
			reg.Close()
			return nil, err
		}
	}

	names := make([]string, 0, reg.Len())
	for _, c := range reg.List() {
		names = append(names, c.Name)
	}
	slog.Info("capabilities available", "capabilities", names)
	return reg, nil
}

type poolCloser struct{ pool *pgxpool.Pool }

func (p poolCloser) Close() error {
	p.pool.Close()
	return nil
}
