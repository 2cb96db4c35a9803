package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Gateway.Port <= 0 {
		errs = append(errs, fmt.Errorf("gateway.port must be > 0, got %d", c.Gateway.Port))
	}

	if c.Executor.AgentTimeout <= 0 {
		errs = append(errs, fmt.Errorf("executor.agent_timeout must be > 0, got %s", c.Executor.AgentTimeout))
	}

	errs = append(errs, c.Domain.validate()...)

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.Storage.Type))
	}

	switch c.LLM.Provider {
	case "openaicompat", "langchain":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be \"openaicompat\" or \"langchain\", got %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}

	for i, s := range c.Tools.MCP.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("tools.mcp.servers[%d].name is required", i))
		}
		switch s.Transport {
		case "sse", "streamable-http", "":
		default:
			errs = append(errs, fmt.Errorf("tools.mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("tools.mcp.servers[%d].url is required", i))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ValidateLLM checks the settings the planner, reporter and agents need.
// Commands that do not talk to a model skip it.
func (c *Config) ValidateLLM() error {
	var errs []error
	if c.LLM.BaseURL == "" && c.LLM.Provider == "openaicompat" {
		errs = append(errs, fmt.Errorf("llm.base_url is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}
	return errors.Join(errs...)
}

func (d *DomainConfig) validate() []error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, fmt.Errorf("domain.id is required"))
	}
	seen := make(map[string]bool, len(d.Agents))
	for i, a := range d.Agents {
		path := fmt.Sprintf("domain.agents[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		} else if seen[a.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", path, a.Name))
		}
		seen[a.Name] = true

		switch {
		case a.URL != "":
			if u, err := url.Parse(a.URL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("%s.url %q is not an absolute URL", path, a.URL))
			}
		case a.Port <= 0 || a.Port > 65535:
			errs = append(errs, fmt.Errorf("%s: url or a port in 1-65535 is required", path))
		}
		if a.MaxTurns < 0 {
			errs = append(errs, fmt.Errorf("%s.max_turns must be >= 0", path))
		}
	}
	return errs
}
