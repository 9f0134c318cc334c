// Command voxprivate is the entry point of the VoxPrivate offline voice
// assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/MrWong99/voxprivate/internal/app"
	"github.com/MrWong99/voxprivate/internal/config"
	"github.com/MrWong99/voxprivate/internal/mcp"
)

const defaultConfigPath = "config.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := cli.StringP("config", "c", defaultConfigPath, "path to the YAML configuration file")
	envFile := cli.StringP("env-file", "e", ".env", "file with VOXPRIVATE_* variables loaded before the config")
	serveMCP := cli.Bool("mcp", false, "expose the commands as MCP tools on stdin/stdout instead of listening")
	listCommands := cli.Bool("list-commands", false, "print the registered commands and exit")
	showVersion := cli.BoolP("version", "v", false, "print the version and exit")
	cli.Parse()

	if *showVersion {
		fmt.Println("voxprivate", app.Version)
		return 0
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "voxprivate: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watchPath, err := loadConfig(*configPath, cli.CommandLine.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxprivate: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levels := new(slog.LevelVar)
	levels.Set(app.LogLevel(cfg.Logging))
	logger, closeLog, err := newLogger(cfg.Logging, levels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxprivate: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("voxprivate starting",
		"version", app.Version,
		"config", watchPath,
		"model", cfg.Model.SpeechRecognition,
		"resolvers", cfg.Intent.Resolvers,
	)

	if *listCommands {
		return printCommands(cfg)
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serveMCP {
		return runMCP(ctx, cfg)
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	printStartupSummary(cfg)

	opts := []app.Option{app.WithLevelVar(levels)}
	if watchPath != "" {
		opts = append(opts, app.WithConfigPath(watchPath))
	}
	application, err := app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.StopTimeout+5*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exit
}

// loadConfig reads path. When the default path does not exist the built-in
// defaults are used with environment overrides applied; an explicitly given
// path must exist. The returned watch path is empty when no file was read.
func loadConfig(path string, explicit bool) (*config.Config, string, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}

	cfg = &config.Config{}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, "", err
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

func printCommands(cfg *config.Config) int {
	d, err := app.NewDispatcher(cfg, nil)
	if err != nil {
		slog.Error("failed to register commands", "err", err)
		return 1
	}
	for _, cmd := range d.Registry().Commands() {
		fmt.Printf("%-16s %s\n", cmd.Name, cmd.Description)
		if len(cmd.Triggers) > 0 {
			fmt.Printf("%-16s say: %s\n", "", strings.Join(cmd.Triggers, " | "))
		}
	}
	return 0
}

// runMCP serves the command registry to an MCP client. Logs stay on stderr
// because stdout carries the protocol.
func runMCP(ctx context.Context, cfg *config.Config) int {
	d, err := app.NewDispatcher(cfg, nil)
	if err != nil {
		slog.Error("failed to register commands", "err", err)
		return 1
	}
	srv := mcp.NewServer(d.Registry(), d, app.Version)
	if err := mcp.ServeStdio(ctx, srv); err != nil {
		slog.Error("mcp server error", "err", err)
		return 1
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

// printStartupSummary writes to stderr; stdout carries the assistant replies.
func printStartupSummary(cfg *config.Config) {
	w := os.Stderr
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       VoxPrivate — startup summary    ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow("Audio", cfg.Audio.Provider, cfg.Audio.Device)
	printRow("VAD", cfg.VAD.Provider, "")
	printRow("STT", cfg.Model.Provider, cfg.Model.SpeechRecognition)
	if cfg.Model.Fallback != "" {
		printRow("STT fallback", cfg.Model.Provider, cfg.Model.Fallback)
	}
	printRow("Intent", strings.Join(cfg.Intent.Resolvers, " → "), "")
	if cfg.Intent.LLM.Name != "" {
		printRow("LLM", cfg.Intent.LLM.Name, cfg.Intent.LLM.Model)
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", "GPU", onOff(cfg.Model.GPUAcceleration))
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", "Logging", onOff(cfg.Logging.Enabled))
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", "Speech", onOff(cfg.Feedback.Speech))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr, "")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-12s    : %-19s ║\n", kind, value)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
