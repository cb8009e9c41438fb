// Package config provides configuration for the collector service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the collector service configuration. Bus, auth, and rate
// limit settings live in pkg/config.Config and are loaded alongside this;
// this struct only covers what's specific to the HTTP ingestion surface.
type Config struct {
	ServiceName string
	HTTPPort    int
	GRPCPort    int
	MetricsPort int

	HTTP HTTPReceiverConfig

	BatchSize       int
	FlushInterval   time.Duration
	WorkerCount     int
	ChannelBuffer   int
	BackpressureMax int
}

// HTTPReceiverConfig holds HTTP receiver settings.
type HTTPReceiverConfig struct {
	Enabled        bool
	ListenAddr     string
	TLSEnabled     bool
	TLSCertPath    string
	TLSKeyPath     string
	MaxBodySize    int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	APIKeyHeader   string
	RateLimitRPS   int
	RateLimitBurst int
}

// Load creates a new Config from environment variables.
func Load() *Config {
	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "collector"),
		HTTPPort:    getEnvAsInt("HTTP_PORT", 8086),
		GRPCPort:    getEnvAsInt("GRPC_PORT", 9086),
		MetricsPort: getEnvAsInt("METRICS_PORT", 9186),

		HTTP: HTTPReceiverConfig{
			Enabled:        getEnvAsBool("HTTP_RECEIVER_ENABLED", true),
			ListenAddr:     getEnv("HTTP_RECEIVER_ADDR", ":8087"),
			TLSEnabled:     getEnvAsBool("HTTP_RECEIVER_TLS", false),
			MaxBodySize:    int64(getEnvAsInt("HTTP_RECEIVER_MAX_BODY", 10485760)),
			ReadTimeout:    getEnvAsDuration("HTTP_RECEIVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("HTTP_RECEIVER_WRITE_TIMEOUT", 30*time.Second),
			APIKeyHeader:   getEnv("HTTP_RECEIVER_API_KEY_HEADER", "X-API-Key"),
			RateLimitRPS:   getEnvAsInt("HTTP_RECEIVER_RATE_LIMIT_RPS", 10000),
			RateLimitBurst: getEnvAsInt("HTTP_RECEIVER_RATE_LIMIT_BURST", 20000),
		},

		BatchSize:       getEnvAsInt("BATCH_SIZE", 1000),
		FlushInterval:   getEnvAsDuration("FLUSH_INTERVAL", 100*time.Millisecond),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 8),
		ChannelBuffer:   getEnvAsInt("CHANNEL_BUFFER", 100000),
		BackpressureMax: getEnvAsInt("BACKPRESSURE_MAX", 500000),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
