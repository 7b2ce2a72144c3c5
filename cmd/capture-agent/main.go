// Command capture-agent exposes a headless Chrome capture service over
// HTTP. The orchestrator talks to it through capture.Client.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sitewatch/blob"
	"github.com/hazyhaar/sitewatch/capture"

	"log/slog"
)

// agentConfig is the agent's YAML configuration file.
type agentConfig struct {
	Port      string `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
	LogLevel  string `yaml:"log_level"`

	Browser struct {
		Remote       string        `yaml:"remote"`
		UserAgent    string        `yaml:"user_agent"`
		NavTimeout   time.Duration `yaml:"nav_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
		SettleBudget time.Duration `yaml:"settle_budget"`
		JPEGQuality  int           `yaml:"jpeg_quality"`
	} `yaml:"browser"`

	Screenshots struct {
		Dir     string `yaml:"dir"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"screenshots"`
}

func loadConfig(path string) (*agentConfig, error) {
	var cfg agentConfig
	cfg.Port = "8090"
	cfg.LogLevel = "info"
	cfg.Screenshots.Dir = "data/screenshots"
	cfg.Screenshots.BaseURL = "/screenshots"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("AGENT_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	return &cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	blobs := blob.NewFS(cfg.Screenshots.Dir, cfg.Screenshots.BaseURL, logger)

	engine := capture.NewEngine(capture.EngineConfig{
		RemoteURL:    cfg.Browser.Remote,
		UserAgent:    cfg.Browser.UserAgent,
		NavTimeout:   cfg.Browser.NavTimeout,
		IdleTimeout:  cfg.Browser.IdleTimeout,
		SettleBudget: cfg.Browser.SettleBudget,
		JPEGQuality:  cfg.Browser.JPEGQuality,
		Logger:       logger,
	}, blobs)
	if err := engine.Start(ctx); err != nil {
		slog.Error("start capture engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           capture.NewHandler(engine, cfg.AuthToken, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("capture agent starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("capture agent stopped")
}
