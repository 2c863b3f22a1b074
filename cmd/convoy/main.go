package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mtzanidakis/convoy/internal/agent"
	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/natsbus"
	"github.com/mtzanidakis/convoy/internal/store"
	"github.com/mtzanidakis/convoy/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("convoy %s\n", version)
	case "run":
		if err := runTeam(); err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
	case "export":
		if err := runExport(os.Args[2:]); err != nil {
			slog.Error("export failed", "error", err)
			os.Exit(1)
		}
	case "inspect":
		if err := runInspect(os.Args[2:]); err != nil {
			slog.Error("inspect failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: convoy <command>\n\nCommands:\n  run        Run the team until the arena ends or a signal arrives\n  export     Write a run's journal to a .jsonl.zst archive\n  inspect    Summarize an exported archive\n  version    Print version\n")
}

func setupLogging(cfg config.LogConfig) *slog.LevelVar {
	lv := new(slog.LevelVar)
	lv.Set(cfg.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
	return lv
}

func runTeam() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := setupLogging(cfg.Log)

	slog.Info("starting convoy", "version", version, "team", cfg.Team.Name, "members", strings.Join(cfg.Team.Members, ","))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// SQLite store
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

	// Team orchestrator
	orch, err := agent.NewOrchestrator(bus, db, cfg)
	if err != nil {
		return fmt.Errorf("init team: %w", err)
	}
	defer orch.Close()
	orch.SetReloader(config.Load)
	orch.SetLogLevel(level)

	// Reload on SIGHUP
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next, err := config.Load()
				if err != nil {
					slog.Error("reload config failed", "error", err)
					continue
				}
				changed, err := orch.Reload(next)
				if err != nil {
					slog.Error("reload failed", "error", err)
					continue
				}
				slog.Info("config reloaded", "changed", changed)
			}
		}
	}()

	// Web UI
	if cfg.Web.Enabled {
		srv := web.NewServer(db, bus, orch, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	if err := orch.Run(ctx); err != nil {
		return err
	}
	slog.Info("shutting down", "run", orch.RunID())
	return nil
}
