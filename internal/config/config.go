// Package config loads the gateway configuration from flags and environment
// variables, with an optional .env file.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start.
type Config struct {
	ListenAddr      string
	RegistryPath    string
	TraceDir        string
	EncryptionKey   string
	UpstreamTimeout time.Duration
	MetricsEnabled  bool
}

// Load parses flags with env-var fallbacks. A .env file in the working
// directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":8080"), "Gateway listen address")
	flag.StringVar(&cfg.RegistryPath, "registry", getEnv("REGISTRY_PATH", "registry.yaml"), "Path to the provider/model registry file")
	flag.StringVar(&cfg.TraceDir, "trace-dir", getEnv("TRACE_DIR", ""), "Directory for the trace store (empty: in-memory)")
	flag.BoolVar(&cfg.MetricsEnabled, "metrics", getEnvBool("METRICS_ENABLED", true), "Expose Prometheus metrics on /metrics")

	timeoutStr := getEnv("UPSTREAM_TIMEOUT", "120s")
	defaultTimeout, _ := time.ParseDuration(timeoutStr)
	if defaultTimeout == 0 {
		defaultTimeout = 120 * time.Second
	}
	flag.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", defaultTimeout, "Round-trip timeout for non-streaming upstream calls")

	flag.Parse()

	// Never accepted as a flag: it would leak through process listings.
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be set (64 hex characters)")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}
