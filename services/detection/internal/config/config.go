// Package config loads Detection-specific environment overrides layered on
// top of the shared pkg/config.Config.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	GroupID     string
	MetricsPort int

	Workers            int
	MaxConcurrentRules int
	ExecutorTimeout    time.Duration
	BatchSize          int
	BatchTimeout       time.Duration
	RuleReloadSchedule string

	ThrottleLocalCacheSize int
	YaraScanTimeout        time.Duration
	AnomalyWindowSize      int
}

func Load() *Config {
	return &Config{
		GroupID:     getEnv("DETECTION_GROUP_ID", "detection"),
		MetricsPort: getEnvAsInt("METRICS_PORT", 9083),

		Workers:            getEnvAsInt("DETECTION_WORKERS", 8),
		MaxConcurrentRules: getEnvAsInt("MAX_CONCURRENT_RULES", 32),
		ExecutorTimeout:    getEnvAsDuration("EXECUTOR_TIMEOUT", 2*time.Second),
		BatchSize:          getEnvAsInt("BATCH_SIZE", 100),
		BatchTimeout:       getEnvAsDuration("BATCH_TIMEOUT", time.Second),
		RuleReloadSchedule: getEnv("RULE_RELOAD_SCHEDULE", "*/1 * * * *"),

		ThrottleLocalCacheSize: getEnvAsInt("THROTTLE_LOCAL_CACHE_SIZE", 10000),
		YaraScanTimeout:        getEnvAsDuration("YARA_SCAN_TIMEOUT", 5*time.Second),
		AnomalyWindowSize:      getEnvAsInt("ANOMALY_WINDOW_SIZE", 2000),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
