// Package main is the entrypoint for the kubeseg analyzer service.
// The analyzer loads a snapshot of observed flows, network policies and
// segmentation intents from a data directory, runs gap and drift analysis
// over it, and serves the results over an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubeseg/analyzer/internal/ingest"
	"github.com/kubeseg/analyzer/internal/server"
)

const (
	defaultListenAddr = ":8080"
	defaultDataDir    = "/var/lib/kubeseg/data"
	defaultRateLimit  = 10.0
	defaultRateBurst  = 20
)

// Config holds the analyzer configuration.
type Config struct {
	// Server configuration
	ListenAddr string

	// Input configuration
	DataDir string

	// Rate limiting
	RateLimitPerSec float64
	RateLimitBurst  int

	// Logging
	LogLevel string
}

func main() {
	cfg := parseFlags()

	log, err := initLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting kubeseg analyzer",
		"listenAddr", cfg.ListenAddr,
		"dataDir", cfg.DataDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Received shutdown signal", "signal", sig)
		cancel()
	}()

	loader := ingest.NewLoader(ingest.LoaderConfig{Logger: log})
	snap, err := loader.LoadSnapshot(cfg.DataDir)
	if err != nil {
		log.Error(err, "Failed to load snapshot", "dataDir", cfg.DataDir)
		os.Exit(1)
	}

	srv := server.NewServer(server.ServerConfig{
		Addr:            cfg.ListenAddr,
		Snapshot:        snap,
		RateLimitPerSec: cfg.RateLimitPerSec,
		RateLimitBurst:  cfg.RateLimitBurst,
		Logger:          log,
	})

	if err := srv.Start(ctx); err != nil {
		log.Error(err, "Failed to start server")
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("Analyzer stopped")
}

func parseFlags() *Config {
	cfg := &Config{}

	// Server flags
	flag.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", defaultListenAddr), "HTTP listen address")

	// Input flags
	flag.StringVar(&cfg.DataDir, "data-dir", getEnv("DATA_DIR", defaultDataDir), "Directory with flows.json, network_policies.yaml and intent.yaml")

	// Rate limit flags
	flag.Float64Var(&cfg.RateLimitPerSec, "rate-limit", getEnvFloat("RATE_LIMIT", defaultRateLimit), "Requests per second per client IP (0 = disabled)")
	flag.IntVar(&cfg.RateLimitBurst, "rate-burst", getEnvInt("RATE_BURST", defaultRateBurst), "Per-client burst size")

	// Logging
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	flag.Parse()

	return cfg
}

func initLogger(level string) (logr.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLog, err := config.Build()
	if err != nil {
		return logr.Logger{}, err
	}

	return zapr.NewLogger(zapLog), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
