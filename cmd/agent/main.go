// Command agent serves one worker agent from the domain roster.
//
//	agent --agent researcher [--config config.yaml] [--port 8001]
//
// The agent's system prompt, guardrails and capability names come from
// domain.agents in the config file. The listen port defaults to the
// agent's configured port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/relay/pkg/agent"
	"github.com/rhuss/relay/pkg/config"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/provider"
	"github.com/rhuss/relay/pkg/provider/factory"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	name := flag.String("agent", os.Getenv("RELAY_AGENT_ID"), "name of the agent to serve")
	port := flag.Int("port", 0, "listen port (default: the agent's configured port)")
	flag.Parse()

	if err := run(*configPath, *name, *port); err != nil {
		slog.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, name string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	if name == "" {
		return errors.New("--agent is required")
	}
	agentCfg, ok := cfg.Domain.Agent(name)
	if !ok {
		return fmt.Errorf("agent %q is not in domain %q", name, cfg.Domain.ID)
	}
	if port == 0 {
		port = agentCfg.Port
	}
	if port == 0 {
		port = 8001
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov, err := factory.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	prov = provider.Instrument(prov)
	defer prov.Close()

	all, err := agent.BuildCapabilities(ctx, cfg.Tools, cfg.LLM)
	if err != nil {
		return err
	}
	defer all.Close()
	caps := all.Select(agentCfg.Capabilities)

	temperature := cfg.LLM.Temperature
	brain := agent.NewBrain(prov, caps, agent.BrainConfig{
		Model:        cfg.LLM.Model,
		SystemPrompt: agentCfg.SystemPrompt,
		Temperature:  &temperature,
		MaxTurns:     agentCfg.MaxTurns,
		Guardrails:   agent.Guardrails(agentCfg.Guardrails),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           agent.NewHandler(name, brain, slog.Default()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("agent starting", "agent", name, "port", port, "capabilities", caps.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Executor.AgentTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
