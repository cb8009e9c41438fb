// Package config provides configuration loading and management for all services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the base configuration for all services.
type Config struct {
	// Service identification
	ServiceName string
	Environment string
	Version     string

	// Server settings
	HTTPPort     int
	GRPCPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Database connections
	PostgresDSN   string
	ClickHouseDSN string
	RedisDSN      string
	RedisMaxConnections int

	// Kafka settings
	KafkaBrokers []string
	KafkaGroupID string

	// Observability
	LogLevel    string
	LogFormat   string
	MetricsPort int
	TracingURL  string

	// Security
	JWTSecret      string
	JWTAlgorithm   string
	AccessTokenExpireMinutes int
	APIKeyHeader   string
	CORSOrigins    []string
	TLSEnabled     bool
	TLSCertPath    string
	TLSKeyPath     string

	// Collector
	CollectorHost string
	CollectorPort int

	// Bus topics (spec §6)
	RawLogsTopic      string
	EnrichedLogsTopic string
	AlertsTopic       string
	KafkaClientIDPrefix string
	KafkaSecurityProtocol string

	// Rate limits (spec §6)
	RateLimitDefaultTimes   int
	RateLimitDefaultSeconds int
	RateLimitBatchTimes     int
	RateLimitBatchSeconds   int
	RateLimitEventTimes     int
	RateLimitEventSeconds   int

	// Elasticsearch-style index store
	ESHosts      []string
	ESUsername   string
	ESPassword   string
	ESSSLVerify  bool
	ESIndexPrefix string

	// Enrichment collaborators
	LDAPURL         string
	LDAPBindDN      string
	LDAPBindPassword string
	GeoIPDBPath     string

	// Alert dispatcher
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SlackWebhookURL   string
	DiscordWebhookURL string
	TelegramBotToken  string

	// Processor
	DedupWindowSeconds   int
	DedupCacheSize       int
	ThreatIntelPath      string
	ArchiveBucket        string
	DeadLetterTopic      string
	IndexRetryBaseMS     int
	IndexRetryMaxMS      int
}

// Load creates a new Config from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:   getEnv("SERVICE_NAME", "unknown"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		Version:       getEnv("VERSION", "0.0.0"),
		HTTPPort:      getEnvAsInt("HTTP_PORT", 8080),
		GRPCPort:      getEnvAsInt("GRPC_PORT", 9090),
		ReadTimeout:   getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:  getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:   getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),
		RedisDSN:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisMaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
		KafkaBrokers:  getEnvAsSlice("KAFKA_BOOTSTRAP_SERVERS", []string{"localhost:9092"}),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		MetricsPort:   getEnvAsInt("METRICS_PORT", 9091),
		TracingURL:    getEnv("TRACING_URL", ""),
		JWTSecret:     getEnv("JWT_SECRET_KEY", ""),
		JWTAlgorithm:  getEnv("JWT_ALGORITHM", "HS256"),
		AccessTokenExpireMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
		APIKeyHeader:  getEnv("API_KEY_HEADER", "X-API-Key"),
		CORSOrigins:   getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
		TLSEnabled:    getEnvAsBool("TLS_ENABLED", false),
		TLSCertPath:   getEnv("TLS_CERT_PATH", ""),
		TLSKeyPath:    getEnv("TLS_KEY_PATH", ""),

		CollectorHost: getEnv("COLLECTOR_HOST", "0.0.0.0"),
		CollectorPort: getEnvAsInt("COLLECTOR_PORT", 8000),

		RawLogsTopic:          getEnv("RAW_LOGS_TOPIC", "raw_logs"),
		EnrichedLogsTopic:     getEnv("ENRICHED_LOGS_TOPIC", "enriched_logs"),
		AlertsTopic:           getEnv("ALERTS_TOPIC", "alerts"),
		KafkaClientIDPrefix:   getEnv("KAFKA_CLIENT_ID_PREFIX", "nightwatch"),
		KafkaSecurityProtocol: getEnv("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT"),

		RateLimitDefaultTimes:   getEnvAsInt("RATE_LIMIT_DEFAULT_TIMES", 100),
		RateLimitDefaultSeconds: getEnvAsInt("RATE_LIMIT_DEFAULT_SECONDS", 60),
		RateLimitBatchTimes:     getEnvAsInt("RATE_LIMIT_BATCH_TIMES", 20),
		RateLimitBatchSeconds:   getEnvAsInt("RATE_LIMIT_BATCH_SECONDS", 60),
		RateLimitEventTimes:     getEnvAsInt("RATE_LIMIT_EVENT_TIMES", 5000),
		RateLimitEventSeconds:   getEnvAsInt("RATE_LIMIT_EVENT_SECONDS", 60),

		ESHosts:       getEnvAsSlice("ES_HOSTS", []string{"http://localhost:9200"}),
		ESUsername:    getEnv("ES_USERNAME", ""),
		ESPassword:    getEnv("ES_PASSWORD", ""),
		ESSSLVerify:   getEnvAsBool("ES_SSL_VERIFY", true),
		ESIndexPrefix: getEnv("ES_INDEX_PREFIX", "logs"),

		LDAPURL:          getEnv("LDAP_URL", ""),
		LDAPBindDN:       getEnv("LDAP_BIND_DN", ""),
		LDAPBindPassword: getEnv("LDAP_BIND_PASSWORD", ""),
		GeoIPDBPath:      getEnv("GEOIP_DB_PATH", ""),

		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SlackWebhookURL:   getEnv("SLACK_WEBHOOK_URL", ""),
		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),

		DedupWindowSeconds: getEnvAsInt("DEDUP_WINDOW_SECONDS", 300),
		DedupCacheSize:     getEnvAsInt("DEDUP_CACHE_SIZE", 100000),
		ThreatIntelPath:    getEnv("THREAT_INTEL_PATH", ""),
		ArchiveBucket:      getEnv("ARCHIVE_BUCKET", ""),
		DeadLetterTopic:    getEnv("DEAD_LETTER_TOPIC", "dead_letter"),
		IndexRetryBaseMS:   getEnvAsInt("INDEX_RETRY_BASE_MS", 200),
		IndexRetryMaxMS:    getEnvAsInt("INDEX_RETRY_MAX_MS", 30000),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that required fields are set based on environment.
func (c *Config) validate() error {
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET_KEY is required in production")
		}
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required in production")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for environment variable parsing

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

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Simple comma-separated parsing
		var result []string
		start := 0
		for i := 0; i <= len(value); i++ {
			if i == len(value) || value[i] == ',' {
				if start < i {
					result = append(result, value[start:i])
				}
				start = i + 1
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
