// ABOUTME: Entry point for the fold-host orchestrator binary.
// ABOUTME: Subcommands: serve, tools, connections, validate.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/fold-host/internal/config"
	"github.com/2389/fold-host/internal/creds"
	"github.com/2389/fold-host/internal/filter"
	"github.com/2389/fold-host/internal/host"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __       _     _       _               _
 / _| ___ | | __| |     | |__   ___  ___| |_
| |_ / _ \| |/ _' |_____| '_ \ / _ \/ __| __|
|  _| (_) | | (_| |_____| | | | (_) \__ \ |_
|_|  \___/|_|\__,_|     |_| |_|\___/|___/\__|
`

// getConfigPath returns the path to the host config file.
// Priority: FOLD_CONFIG env var > XDG_CONFIG_HOME/fold/host.yaml > ~/.config/fold/host.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FOLD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "host.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "fold", "host.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: fold-host <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve        Connect to all configured servers and run until interrupted")
		fmt.Println("  tools        Connect, list the aggregated tools, and exit")
		fmt.Println("  connections  Connect and report per-connection status")
		fmt.Println("  validate     Check the config file without connecting")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "tools":
		err = runTools(ctx)
	case "connections":
		err = runConnections(ctx)
	case "validate":
		err = runValidate()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:      %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Connections: %d\n", len(cfg.Connections))
	if cfg.Credentials.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Credentials: %s\n", cfg.Credentials.Path)
	}
	fmt.Println()

	h, err := buildHost(cfg, logger)
	if err != nil {
		return err
	}

	report := h.Start(ctx)
	printReport(report)
	if report.AllFailed() {
		_ = h.Shutdown(context.Background())
		return fmt.Errorf("no connection came up")
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return h.Shutdown(context.Background())
}

func runTools(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(config.LoggingConfig{Level: "error", Format: cfg.Logging.Format})

	h, err := buildHost(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = h.Shutdown(context.Background()) }()

	report := h.Start(ctx)
	printReport(report)

	tools := h.ListTools("")
	if len(tools) == 0 {
		fmt.Println("no tools available")
		return nil
	}

	cyan := color.New(color.FgCyan)
	for _, tool := range tools {
		cyan.Printf("  %s", tool.Name)
		fmt.Printf("  (%s)\n", tool.Connection)
		if tool.Description != "" {
			fmt.Printf("      %s\n", tool.Description)
		}
	}
	return nil
}

func runConnections(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(config.LoggingConfig{Level: "error", Format: cfg.Logging.Format})

	h, err := buildHost(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = h.Shutdown(context.Background()) }()

	h.Start(ctx)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, status := range h.Connections() {
		switch status.State {
		case host.StateReady:
			green.Print("  ● ")
		case host.StateFailed:
			red.Print("  ● ")
		default:
			fmt.Print("  ● ")
		}
		fmt.Printf("%-20s %-12s %s", status.Name, status.Transport, status.State)
		if status.Err != nil {
			fmt.Printf("  (%v)", status.Err)
		}
		fmt.Println()
	}
	return nil
}

func runValidate() error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ %s is valid (%d connections)\n", configPath, len(cfg.Connections))
	return nil
}

// buildHost assembles the credential store and host from config.
func buildHost(cfg *config.Config, logger *slog.Logger) (*host.Host, error) {
	store, err := buildCredStore(cfg.Credentials, logger)
	if err != nil {
		return nil, fmt.Errorf("building credential store: %w", err)
	}

	h, err := host.New(cfg, host.Options{
		Logger:      logger,
		Scorer:      filter.NewTokenScorer(),
		Credentials: store,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("building host: %w", err)
	}
	return h, nil
}

func buildCredStore(cfg config.CredentialsConfig, logger *slog.Logger) (creds.Store, error) {
	var key []byte
	if cfg.Key != "" {
		decoded, err := hex.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("credentials.key is not valid hex: %w", err)
		}
		key = decoded
	}

	if cfg.Path != "" {
		return creds.NewSQLiteStore(creds.SQLiteStoreConfig{
			Path:     cfg.Path,
			Key:      key,
			TokenTTL: cfg.TokenTTL,
			Logger:   logger,
		})
	}
	return creds.NewMemoryStore(creds.MemoryStoreConfig{
		Key:      key,
		TokenTTL: cfg.TokenTTL,
		Logger:   logger,
	})
}

func printReport(report *host.StartupReport) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for _, name := range report.Ready {
		green.Print("  ✓ ")
		fmt.Println(name)
	}
	for name, err := range report.Failed {
		red.Print("  ✗ ")
		fmt.Printf("%s: %v\n", name, err)
	}
	fmt.Println()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{level: level})
}

// colorHandler writes colorized single-line log records to stderr.
// Stdout stays clean for command output; connected stdio subprocesses own
// their own stderr.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	writeAttr := func(a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(a)
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	merged = append(merged, attrs...)
	return &colorHandler{level: h.level, attrs: merged}
}

func (h *colorHandler) WithGroup(string) slog.Handler {
	return h
}
