package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("REQGATEWAY_CONFIG", "configs/gateway.yaml"),
		"Path to configuration file (env: REQGATEWAY_CONFIG)")
	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("REQGATEWAY_CONFIG", "configs/gateway.yaml"),
		"Path to configuration file (env: REQGATEWAY_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("REQGATEWAY_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: REQGATEWAY_LOG_LEVEL)")
	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("REQGATEWAY_LOG_FORMAT", "json"),
		"Log format: json, text (env: REQGATEWAY_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug", getEnvBool("REQGATEWAY_DEBUG", false),
		"Enable debug mode (env: REQGATEWAY_DEBUG)")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("REQGATEWAY_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: REQGATEWAY_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
