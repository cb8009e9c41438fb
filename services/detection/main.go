package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/bus"
	pkgconfig "github.com/nightwatch-siem/nightwatch/pkg/config"
	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/alert"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/anomaly"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/config"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/consumer"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/engine"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/mitre"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/rule"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/throttle"
	"github.com/nightwatch-siem/nightwatch/services/detection/internal/yara"
)

const serviceName = "detection"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	shared, err := pkgconfig.Load()
	if err != nil {
		logger.Error("load shared config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgConn, err := repository.NewPostgresConn(postgresConfigFromURL(shared.PostgresDSN))
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgConn.Close()
	ruleRepo := repository.NewPostgresDetectionRuleRepository(pgConn)

	chConn, err := repository.NewClickHouseConn(clickhouseConfigFromURL(shared.ClickHouseDSN))
	if err != nil {
		logger.Error("connect clickhouse", "error", err)
		os.Exit(1)
	}
	defer chConn.Close()
	alertRepo := repository.NewClickHouseAlertRepository(chConn)

	redisConn, err := repository.NewRedisConn(redisConfigFromURL(shared.RedisDSN, 0))
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer redisConn.Close()
	throttleCache := repository.NewRedisCache(redisConn, "throttle")

	ruleLoader := rule.NewLoader(rule.LoaderConfig{
		UseDatabase: true,
		TenantID:    getEnv("TENANT_ID", "default"),
	}, rule.NewPostgresRepository(ruleRepo), logger)

	throttler := throttle.New(throttleCache, cfg.ThrottleLocalCacheSize)
	yaraScanner := yara.NewScanner(cfg.YaraScanTimeout)
	anomalyModels := anomaly.NewRegistry(cfg.AnomalyWindowSize)
	mitreMapper := mitre.NewMapper()

	executor := engine.NewExecutor(cfg.MaxConcurrentRules, cfg.ExecutorTimeout, throttler, yaraScanner, anomalyModels, mitreMapper, logger)

	engineCfg := engine.DefaultEngineConfig()
	engineCfg.NumWorkers = cfg.Workers
	engineCfg.BatchSize = cfg.BatchSize
	engineCfg.BatchTimeout = cfg.BatchTimeout
	engineCfg.RuleReloadSchedule = cfg.RuleReloadSchedule
	engineCfg.MaxConcurrentRules = cfg.MaxConcurrentRules

	detectionEngine := engine.NewEngine(engineCfg, ruleLoader, executor, logger)
	if err := detectionEngine.Start(); err != nil {
		logger.Error("start detection engine", "error", err)
		os.Exit(1)
	}

	alertProducer, err := bus.NewProducer(bus.Config{
		Brokers:        shared.KafkaBrokers,
		ClientIDPrefix: shared.KafkaClientIDPrefix,
	})
	if err != nil {
		logger.Error("build alert producer", "error", err)
		os.Exit(1)
	}
	defer alertProducer.Close()

	alertManager := alert.NewManager(alert.DefaultManagerConfig(), alertRepo, &busAlertProducer{producer: alertProducer, topic: bus.TopicAlerts}, logger)

	go drainResults(ctx, detectionEngine, alertManager, logger)

	busConsumer, err := bus.NewConsumer(bus.Config{
		Brokers:        shared.KafkaBrokers,
		ClientIDPrefix: shared.KafkaClientIDPrefix,
		GroupID:        cfg.GroupID,
		Topics:         []string{bus.TopicEnrichedLogs},
	})
	if err != nil {
		logger.Error("build consumer", "error", err)
		os.Exit(1)
	}
	defer busConsumer.Close()

	bridge := consumer.New(detectionEngine, logger)

	go func() {
		if err := busConsumer.Run(ctx, bridge.Handle); err != nil && ctx.Err() == nil {
			logger.Error("consumer loop exited", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) { readyHandler(w, r, detectionEngine) })
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) { metricsHandler(w, r, bridge, detectionEngine, alertManager) })
	mux.HandleFunc("GET /api/v1/rules", func(w http.ResponseWriter, r *http.Request) { listRulesHandler(w, r, detectionEngine) })

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.MetricsPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", "service", serviceName)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := detectionEngine.Stop(); err != nil {
		logger.Error("stop detection engine", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced shutdown", "error", err)
	}

	logger.Info("detection service stopped")
}

// drainResults turns engine detection results into alerts. A DetectionResult
// carries matched-field snapshots rather than full events, so the alert is
// built from the result alone.
func drainResults(ctx context.Context, eng *engine.Engine, mgr *alert.Manager, logger *slog.Logger) {
	for result := range eng.Results() {
		if _, err := mgr.CreateAlert(ctx, result, nil); err != nil {
			logger.Error("create alert", "error", err, "rule_id", result.RuleID)
		}
	}
}

// busAlertProducer adapts the shared bus.Producer to alert.AlertProducer.
type busAlertProducer struct {
	producer *bus.Producer
	topic    string
}

func (p *busAlertProducer) Publish(ctx context.Context, a *alert.Alert) error {
	payload, err := a.AlertJSON()
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.producer.Publish(ctx, p.topic, []byte(a.ID), payload)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"detection"}`)
}

func readyHandler(w http.ResponseWriter, r *http.Request, eng *engine.Engine) {
	w.Header().Set("Content-Type", "application/json")

	status := "ready"
	code := http.StatusOK
	if eng.State() != engine.StateRunning {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":"%s","service":"detection"}`, status)
}

func metricsHandler(w http.ResponseWriter, r *http.Request, c *consumer.Bridge, eng *engine.Engine, mgr *alert.Manager) {
	w.Header().Set("Content-Type", "application/json")

	metrics := map[string]interface{}{
		"service":  serviceName,
		"consumer": c.Stats(),
		"engine":   eng.Stats(),
		"alerts":   mgr.Stats(),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(metrics)
}

func listRulesHandler(w http.ResponseWriter, r *http.Request, eng *engine.Engine) {
	w.Header().Set("Content-Type", "application/json")

	rules := make([]map[string]interface{}, 0)
	for _, ru := range eng.GetRules() {
		rules = append(rules, map[string]interface{}{
			"id":       ru.ID,
			"name":     ru.Name,
			"type":     ru.Type,
			"status":   ru.Status,
			"severity": ru.Severity,
			"enabled":  ru.IsEnabled,
		})
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"rules": rules})
}

func postgresConfigFromURL(dsn string) repository.PostgresConfig {
	cfg := repository.DefaultPostgresConfig()
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return cfg
	}
	cfg.Host = u.Hostname()
	if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
		cfg.Port = p
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if db := trimLeadingSlash(u.Path); db != "" {
		cfg.Database = db
	}
	if sslmode := u.Query().Get("sslmode"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	return cfg
}

func clickhouseConfigFromURL(dsn string) repository.ClickHouseConfig {
	cfg := repository.DefaultClickHouseConfig()
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return cfg
	}
	cfg.Hosts = []string{u.Host}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if db := trimLeadingSlash(u.Path); db != "" {
		cfg.Database = db
	}
	return cfg
}

func redisConfigFromURL(dsn string, maxConns int) repository.RedisConfig {
	cfg := repository.DefaultRedisConfig()
	if u, err := url.Parse(dsn); err == nil && u.Host != "" {
		cfg.Addresses = []string{u.Host}
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}
	if maxConns > 0 {
		cfg.PoolSize = maxConns
	}
	return cfg
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
