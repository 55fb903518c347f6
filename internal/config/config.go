package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Bridge channel (outbound WebSocket to the PBX bridge)
	BridgeURL        string
	BridgeToken      string
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
	FallbackAfter    int // consecutive failures before polling fallback
	PollInterval     time.Duration
	BootstrapURL     string

	// Dashboard broadcast
	TickInterval time.Duration

	// Dashboard WebSocket keepalive
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		BridgeURL:      getEnv("BRIDGE_URL", "ws://localhost:9090/ws"),
		BridgeToken:    getEnv("BRIDGE_TOKEN", ""),
	}
	config.BootstrapURL = getEnv("BOOTSTRAP_URL", "http://localhost:9090")

	reconnectBase, err := strconv.Atoi(getEnv("RECONNECT_BASE_SECONDS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONNECT_BASE_SECONDS: %w", err)
	}
	config.ReconnectBase = time.Duration(reconnectBase) * time.Second

	reconnectMax, err := strconv.Atoi(getEnv("RECONNECT_MAX_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONNECT_MAX_SECONDS: %w", err)
	}
	config.ReconnectMax = time.Duration(reconnectMax) * time.Second

	config.FallbackAfter, err = strconv.Atoi(getEnv("FALLBACK_AFTER_FAILURES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid FALLBACK_AFTER_FAILURES: %w", err)
	}

	pollInterval, err := strconv.Atoi(getEnv("POLL_INTERVAL_SECONDS", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: %w", err)
	}
	config.PollInterval = time.Duration(pollInterval) * time.Second

	tickInterval, err := strconv.Atoi(getEnv("TICK_INTERVAL_MS", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid TICK_INTERVAL_MS: %w", err)
	}
	config.TickInterval = time.Duration(tickInterval) * time.Millisecond

	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
