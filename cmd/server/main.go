// Command server runs the relay orchestration service for one domain.
//
// Configuration is read from a YAML file (--config, RELAY_CONFIG,
// ./config.yaml or /etc/relay/config.yaml) with RELAY_* environment
// overrides. The most common overrides:
//
//	RELAY_PORT           - Listen port (default: 8000)
//	RELAY_LLM_BASE_URL   - Chat Completions backend URL
//	RELAY_LLM_MODEL      - Model used by the planner and reporter
//	RELAY_STORAGE        - "memory", "postgres" or "sqlite" (default: "memory")
//	RELAY_DEBUG          - Debug categories, e.g. "planner,executor,agents"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/relay/pkg/agentrpc"
	"github.com/rhuss/relay/pkg/config"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/executor"
	"github.com/rhuss/relay/pkg/orchestrator"
	"github.com/rhuss/relay/pkg/planner"
	"github.com/rhuss/relay/pkg/provider"
	"github.com/rhuss/relay/pkg/provider/factory"
	"github.com/rhuss/relay/pkg/reporter"
	"github.com/rhuss/relay/pkg/storage/memory"
	"github.com/rhuss/relay/pkg/storage/postgres"
	"github.com/rhuss/relay/pkg/storage/sqlite"
	transporthttp "github.com/rhuss/relay/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	prov, err := factory.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	prov = provider.Instrument(prov)
	defer prov.Close()

	roster := executor.RosterFromConfig(cfg.Domain, cfg.Executor.AgentHost)
	if roster.Len() == 0 {
		slog.Warn("domain has no agents; every plan will be rejected", "domain", cfg.Domain.ID)
	}

	p := &planner.LLMPlanner{
		Provider:     prov,
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		Descriptions: roster.Descriptions(),
	}
	r := &reporter.LLMReporter{
		Provider:    prov,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	}
	exec := executor.New(agentrpc.NewHTTPInvoker(cfg.Executor.AgentTimeout), roster)

	svc := orchestrator.NewService(store, p, exec, r, orchestrator.WithDomainID(cfg.Domain.ID))

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	srv := transporthttp.NewServer(svc, svc,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithDrainer(svc),
	)

	slog.Info("server starting",
		"port", cfg.Server.Port,
		"domain", cfg.Domain.ID,
		"agents", roster.Names(),
		"provider", prov.Name(),
		"model", cfg.LLM.Model,
		"storage", cfg.Storage.Type)

	return srv.Run(ctx)
}

// openStore creates the configured trace store.
func openStore(ctx context.Context, cfg config.StorageConfig) (orchestrator.TraceStore, error) {
	switch cfg.Type {
	case "", "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "migrate_on_start", cfg.Postgres.MigrateOnStart)
		return s, nil
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", config.ErrConfig, cfg.Type)
	}
}
