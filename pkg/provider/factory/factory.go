// Package factory builds the configured provider.Provider.
package factory

import (
	"fmt"

	"github.com/rhuss/relay/pkg/config"
	"github.com/rhuss/relay/pkg/provider"
	"github.com/rhuss/relay/pkg/provider/langchain"
	"github.com/rhuss/relay/pkg/provider/openaicompat"
)

// New creates the provider named by cfg.Provider.
func New(cfg config.LLMConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "", "openaicompat":
		return openaicompat.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "langchain":
		return langchain.NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrConfig, cfg.Provider)
	}
}
