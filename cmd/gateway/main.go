// Command gateway runs the public entry point in front of the
// orchestration service. It forwards queries and trace lookups and adds a
// correlation header.
//
//	RELAY_GATEWAY_PORT      - Listen port (default: 8080)
//	RELAY_ORCHESTRATOR_URL  - Orchestration service URL (default: http://127.0.0.1:<server.port>)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/relay/pkg/config"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/gateway"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("gateway failed", "error", err)
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

	upstream := cfg.OrchestratorURL()
	gw := gateway.New(upstream, cfg.Gateway.Timeout, gateway.WithCORSOrigins(cfg.Server.CORSOrigins))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway starting", "port", cfg.Gateway.Port, "orchestrator", upstream)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
