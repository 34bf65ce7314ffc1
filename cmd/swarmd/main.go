package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
	"github.com/superdisco-agents/moai-flow-sub004/internal/maintenance"
	"github.com/superdisco-agents/moai-flow-sub004/internal/monitor"
	"github.com/superdisco-agents/moai-flow-sub004/internal/natsbus"
	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
	"github.com/superdisco-agents/moai-flow-sub004/internal/store"
	"github.com/superdisco-agents/moai-flow-sub004/internal/swarm"
	"github.com/superdisco-agents/moai-flow-sub004/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("swarmd %s\n", version)
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("swarmd failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: swarmd <command>\n\nCommands:\n  serve      Start the swarm coordinator service\n  version    Print version\n")
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting swarmd", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite history store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	client, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer client.Close()

	// Agent registry and delivery monitor
	reg := registry.New()
	mon := monitor.New(cfg.Monitor)

	// Swarm coordinator
	coord, err := swarm.NewCoordinator(client, reg, mon, db, cfg.Swarm)
	if err != nil {
		return fmt.Errorf("init coordinator: %w", err)
	}
	go coord.Start(ctx)
	slog.Info("coordinator started", "topology", cfg.Swarm.Topology)

	// Retention sweep for archived samples
	janitor := maintenance.NewJanitor(db, client, cfg.Store)
	go janitor.Start(ctx)

	// Status API
	if cfg.Web.Enabled {
		srv := web.NewServer(coord, db, bus, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	return nil
}
