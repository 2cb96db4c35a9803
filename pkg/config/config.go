// Package config provides unified configuration for the relay services.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (RELAY_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// One file describes a whole domain: the orchestrator, its agent roster, the
// gateway in front of it, and the data sources the agents' capabilities use.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for a relay domain.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Domain        DomainConfig        `yaml:"domain"`
	Executor      ExecutorConfig      `yaml:"executor"`
	LLM           LLMConfig           `yaml:"llm"`
	Storage       StorageConfig       `yaml:"storage"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Tools         ToolsConfig         `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds orchestration HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8000
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 15m
	CORSOrigins  []string      `yaml:"cors_origins"`  // default: ["*"]
}

// DomainConfig describes the agents available to the planner.
type DomainConfig struct {
	ID     string        `yaml:"id"` // default: "default"
	Name   string        `yaml:"name"`
	Agents []AgentConfig `yaml:"agents"`
}

// AgentConfig describes one worker agent. The orchestrator reaches it at URL,
// or at http://<executor.agent_host>:<port> when only Port is set.
type AgentConfig struct {
	Name         string   `yaml:"name"`
	URL          string   `yaml:"url"`
	Port         int      `yaml:"port"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	Guardrails   []string `yaml:"guardrails"`
	Capabilities []string `yaml:"capabilities"`
	MaxTurns     int      `yaml:"max_turns"` // default: 10
}

// Agent returns the named agent.
func (d *DomainConfig) Agent(name string) (AgentConfig, bool) {
	for _, a := range d.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// BaseURL resolves the agent's base URL.
func (a AgentConfig) BaseURL(host string) string {
	if a.URL != "" {
		return a.URL
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, a.Port)
}

// ExecutorConfig holds plan execution settings.
type ExecutorConfig struct {
	AgentTimeout time.Duration `yaml:"agent_timeout"` // default: 120s
	AgentHost    string        `yaml:"agent_host"`    // default: "127.0.0.1"
}

// LLMConfig holds the language model backend used by the planner, the
// reporter and the agent runtime.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "openaicompat" or "langchain", default: "openaicompat"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file"` // _file variant for api_key
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"` // default: 0
	Timeout     time.Duration `yaml:"timeout"`     // default: 60s
}

// StorageConfig holds trace store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "sqlite", default: "memory"
	MaxSize  int            `yaml:"max_size"` // memory store request cap, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "data/relay.db"
}

// GatewayConfig holds the public gateway settings.
type GatewayConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	OrchestratorURL string        `yaml:"orchestrator_url"` // default: http://127.0.0.1:<server.port>
	Timeout         time.Duration `yaml:"timeout"`          // default: 15m
}

// ToolsConfig holds the data sources behind agent capabilities.
type ToolsConfig struct {
	SQL    SQLToolConfig    `yaml:"sql"`
	Vector VectorToolConfig `yaml:"vector"`
	MCP    MCPConfig        `yaml:"mcp"`
}

// SQLToolConfig configures the query_facts capability.
type SQLToolConfig struct {
	DSN     string `yaml:"dsn"`
	DSNFile string `yaml:"dsn_file"`
	MaxRows int    `yaml:"max_rows"` // default: 50
}

// VectorToolConfig configures the search_docs capability.
type VectorToolConfig struct {
	QdrantURL      string `yaml:"qdrant_url"`
	Collection     string `yaml:"collection"` // default: "docs"
	EmbeddingURL   string `yaml:"embedding_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimensions     int    `yaml:"dimensions"` // default: 1536
	TopK           int    `yaml:"top_k"`      // default: 4
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log level, format and debug categories.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma separated categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 15 * time.Minute,
			CORSOrigins:  []string{"*"},
		},
		Domain: DomainConfig{
			ID: "default",
		},
		Executor: ExecutorConfig{
			AgentTimeout: 120 * time.Second,
			AgentHost:    "127.0.0.1",
		},
		LLM: LLMConfig{
			Provider: "openaicompat",
			Timeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
			SQLite: SQLiteConfig{
				Path: "data/relay.db",
			},
		},
		Gateway: GatewayConfig{
			Port:    8080,
			Timeout: 15 * time.Minute,
		},
		Tools: ToolsConfig{
			SQL: SQLToolConfig{MaxRows: 50},
			Vector: VectorToolConfig{
				Collection: "docs",
				Dimensions: 1536,
				TopK:       4,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// OrchestratorURL returns the gateway's upstream, defaulting to the local
// orchestration server.
func (c *Config) OrchestratorURL() string {
	if c.Gateway.OrchestratorURL != "" {
		return c.Gateway.OrchestratorURL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
}
