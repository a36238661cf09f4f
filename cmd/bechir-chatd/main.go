// ABOUTME: Entry point for the bechir-chatd chat daemon
// ABOUTME: Wires store, settings, completion client, and the webchat HTTP API

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/bechir-ai/chatd/internal/completion"
	"github.com/bechir-ai/chatd/internal/config"
	"github.com/bechir-ai/chatd/internal/conversation"
	"github.com/bechir-ai/chatd/internal/reply"
	"github.com/bechir-ai/chatd/internal/settings"
	"github.com/bechir-ai/chatd/internal/speech"
	"github.com/bechir-ai/chatd/internal/store"
	"github.com/bechir-ai/chatd/internal/webchat"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _               _     _                 _           _      _
| |__   ___  ___| |__ (_)_ __       ___| |__   __ _| |_ __| |
| '_ \ / _ \/ __| '_ \| | '__|____ / __| '_ \ / _' | __/ _' |
| |_) |  __/ (__| | | | | | |_____| (__| | | | (_| | || (_| |
|_.__/ \___|\___|_| |_|_|_|        \___|_| |_|\__,_|\__\__,_|
`

// getConfigPath returns the path to the daemon config file.
// Priority: BECHIR_CONFIG env var > XDG_CONFIG_HOME/bechir/chatd.yaml > ~/.config/bechir/chatd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BECHIR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chatd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "bechir", "chatd.yaml")
}

// getDataPath returns the path to the bechir data directory.
// Priority: XDG_DATA_HOME/bechir > ~/.local/share/bechir
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "bechir")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: bechir-chatd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the chat daemon")
		fmt.Println("  init     Create a new config file")
		fmt.Println("  health   Check daemon health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
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

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Database.Path != "" {
		fmt.Printf("Database: %s\n", cfg.Database.Path)
	} else {
		fmt.Printf("Database: in-memory\n")
	}
	fmt.Println()

	logger.Info("starting bechir-chatd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	// Open the store: SQLite when a path is configured, memory otherwise
	var st store.Store
	if cfg.Database.Path != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		st = sqlStore
	} else {
		st = store.NewMemoryStore(logger)
	}
	defer st.Close()

	if err := store.Seed(ctx, st); err != nil {
		return fmt.Errorf("seeding store: %w", err)
	}

	// Settings start from the config file's AI section
	initial := settings.Defaults()
	if cfg.AI.APIKey != "" {
		initial.AI.APIKey = cfg.AI.APIKey
	}
	if cfg.AI.Model != "" {
		initial.AI.Model = cfg.AI.Model
	}
	if cfg.AI.Temperature != 0 {
		initial.AI.Temperature = cfg.AI.Temperature
	}
	if cfg.AI.SystemPrompt != "" {
		initial.AI.SystemPrompt = cfg.AI.SystemPrompt
	}
	registry, err := settings.NewRegistry(initial, logger)
	if err != nil {
		return fmt.Errorf("initializing settings: %w", err)
	}

	// Completion client follows the settings registry
	endpoint := cfg.AI.Endpoint
	if endpoint == "" {
		endpoint = completion.DefaultEndpoint
	}
	client := completion.NewClientWithEndpoint(completion.Config{
		APIKey:       initial.AI.APIKey,
		Model:        initial.AI.Model,
		Temperature:  initial.AI.Temperature,
		SystemPrompt: initial.AI.SystemPrompt,
	}, endpoint, &http.Client{Timeout: cfg.AI.RequestTimeout}, logger)
	registry.Subscribe(func(s settings.Settings) {
		client.UpdateSettings(s.AI.APIKey, s.AI.Model, s.AI.Temperature, s.AI.SystemPrompt)
	})

	// The daemon has no audio backends; the bridge reports speech as
	// unavailable and the voices endpoint returns an empty list
	bridge := speech.NewBridge(nil, nil, logger)

	strategy := &reply.AutoStrategy{
		Completion: &reply.CompletionStrategy{Client: client},
		Echo:       &reply.LocalEchoStrategy{},
	}

	svc := conversation.New(st, strategy, registry, bridge, logger)
	defer svc.Close()

	api := webchat.NewServer(svc, registry, bridge, logger)
	defer api.Close()

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// runInit writes a starter config file if none exists
func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "chatd.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	if _, err := os.Stat(configPath); err == nil {
		cyan.Printf("  Config already exists: %s\n", configPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# bechir-chatd configuration
# Generated by bechir-chatd init

server:
  http_addr: "127.0.0.1:8480"

database:
  path: "%s"

ai:
  api_key: "${PERPLEXITY_API_KEY}"
  model: "llama-3.1-sonar-small-128k-online"
  temperature: 0.2
  request_timeout: "60s"

logging:
  level: "info"
  format: "text"
`, dbPath)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green.Printf("  ✓ Created config: %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
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

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
