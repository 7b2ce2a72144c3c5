// Command sitewatch runs the monitoring API and the batch check scheduler.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/sitewatch/blob"
	"github.com/hazyhaar/sitewatch/capture"
	"github.com/hazyhaar/sitewatch/dbopen"
	"github.com/hazyhaar/sitewatch/monitor"
	"github.com/hazyhaar/sitewatch/notify"
	"github.com/hazyhaar/sitewatch/store"
	"github.com/hazyhaar/sitewatch/summarize"

	"log/slog"

	_ "modernc.org/sqlite"
)

func main() {
	port := env("PORT", "8080")
	dbPath := env("DB_PATH", "db/sitewatch.db")
	serviceToken := os.Getenv("SERVICE_TOKEN")
	if serviceToken == "" {
		slog.Error("SERVICE_TOKEN is required")
		os.Exit(1)
	}

	screenshotDir := env("SCREENSHOT_DIR", "data/screenshots")
	screenshotBaseURL := env("SCREENSHOT_BASE_URL", "/screenshots")
	captureEndpoint := os.Getenv("CAPTURE_ENDPOINT")
	captureToken := os.Getenv("CAPTURE_TOKEN")
	aiEndpoint := os.Getenv("AI_ENDPOINT")
	aiKey := os.Getenv("AI_API_KEY")
	aiModel := env("AI_MODEL", "gpt-4o-mini")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
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

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		slog.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	blobs := blob.NewFS(screenshotDir, screenshotBaseURL, logger)

	// Captures go through the remote agent when configured, otherwise a
	// local headless Chrome is launched in-process.
	var capSvc capture.Service
	if captureEndpoint != "" {
		capSvc = capture.NewClient(capture.ClientConfig{
			Endpoint:  captureEndpoint,
			AuthToken: captureToken,
			Logger:    logger,
		}, blobs)
		slog.Info("using remote capture agent", "endpoint", captureEndpoint)
	} else {
		engine := capture.NewEngine(capture.EngineConfig{Logger: logger}, blobs)
		if err := engine.Start(ctx); err != nil {
			slog.Error("start capture engine", "error", err)
			os.Exit(1)
		}
		defer engine.Close()
		capSvc = engine
	}

	var analyzer summarize.Analyzer
	if aiEndpoint != "" {
		analyzer = summarize.NewHTTP(summarize.Config{
			Endpoint: aiEndpoint,
			APIKey:   aiKey,
			Model:    aiModel,
			Logger:   logger,
		})
	} else {
		slog.Warn("AI_ENDPOINT not set, changes get the fallback narrative")
	}

	svc := monitor.New(monitor.Config{ServiceToken: serviceToken}, monitor.Deps{
		Store:    store.New(db),
		Capture:  capSvc,
		Analyzer: analyzer,
		Blobs:    blobs,
		Sink:     notify.NewStdout(os.Stdout),
		Logger:   logger,
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           svc.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // batch runs answer on this connection
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
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
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
