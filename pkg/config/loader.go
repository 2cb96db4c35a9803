package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks startup misconfiguration. Every error returned by Load
// wraps it.
var ErrConfig = errors.New("configuration error")

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, RELAY_CONFIG env, ./config.yaml, /etc/relay/config.yaml)
//  3. RELAY_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("%w: loading config file %s: %w", ErrConfig, filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrConfig, err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("%w: resolving file references: %w", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. RELAY_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/relay/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("RELAY_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/relay/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so typos surface at startup.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and keeps the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps RELAY_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setInt("RELAY_PORT", &cfg.Server.Port)
	if v := os.Getenv("RELAY_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	setString("RELAY_DOMAIN_ID", &cfg.Domain.ID)
	if v := os.Getenv("RELAY_AGENTS"); v != "" {
		var agents []AgentConfig
		if err := json.Unmarshal([]byte(v), &agents); err != nil {
			errs = append(errs, fmt.Errorf("RELAY_AGENTS: parsing agents JSON: %w", err))
		} else if len(agents) > 0 {
			cfg.Domain.Agents = agents
		}
	}

	setDuration("RELAY_AGENT_TIMEOUT", &cfg.Executor.AgentTimeout)
	setString("RELAY_AGENT_HOST", &cfg.Executor.AgentHost)

	setString("RELAY_LLM_PROVIDER", &cfg.LLM.Provider)
	setString("RELAY_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("RELAY_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("RELAY_LLM_MODEL", &cfg.LLM.Model)

	setString("RELAY_STORAGE", &cfg.Storage.Type)
	setString("RELAY_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	setString("RELAY_SQLITE_PATH", &cfg.Storage.SQLite.Path)

	setInt("RELAY_GATEWAY_PORT", &cfg.Gateway.Port)
	setString("RELAY_ORCHESTRATOR_URL", &cfg.Gateway.OrchestratorURL)

	setString("RELAY_SQL_DSN", &cfg.Tools.SQL.DSN)
	setString("RELAY_QDRANT_URL", &cfg.Tools.Vector.QdrantURL)
	setString("RELAY_EMBEDDING_URL", &cfg.Tools.Vector.EmbeddingURL)

	// RELAY_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("RELAY_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			errs = append(errs, err)
		} else if len(servers) > 0 {
			cfg.Tools.MCP.Servers = servers
		}
	}

	setString("RELAY_LOG_LEVEL", &cfg.Logging.Level)
	setString("RELAY_LOG_FORMAT", &cfg.Logging.Format)
	setString("RELAY_DEBUG", &cfg.Logging.Debug)

	return errors.Join(errs...)
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("RELAY_MCP_SERVERS: parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"llm.api_key_file", cfg.LLM.APIKeyFile, &cfg.LLM.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"tools.sql.dsn_file", cfg.Tools.SQL.DSNFile, &cfg.Tools.SQL.DSN},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
