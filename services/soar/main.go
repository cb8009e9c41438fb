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
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/config"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/executor"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/playbook"
	"github.com/nightwatch-siem/nightwatch/services/soar/internal/wiring"
)

const serviceName = "soar"

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

	pgConn, err := repository.NewPostgresConn(postgresConfigFromURL(shared.PostgresDSN, cfg.Database))
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgConn.Close()

	playbookRepo := playbook.NewPostgresRepository(repository.NewPostgresPlaybookRepository(pgConn))
	runRepo := repository.NewPostgresPlaybookRunRepository(pgConn)
	caseRepo := repository.NewPostgresCaseRepository(pgConn)

	tenantID := getEnv("TENANT_ID", "default")

	loader := playbook.NewLoader(playbook.LoaderConfig{
		PlaybooksDirectory: cfg.PlaybookDir,
		UseDatabase:        true,
		TenantID:           tenantID,
	}, playbookRepo, logger)

	if _, err := loader.LoadAll(ctx); err != nil {
		logger.Error("load playbooks", "error", err)
		os.Exit(1)
	}

	registry, err := wiring.BuildRegistry(wiring.BuildConfig{
		Timeout:       cfg.Connectors.Timeout,
		TheHiveURL:    cfg.Connectors.TheHiveURL,
		TheHiveAPIKey: cfg.Connectors.TheHiveAPIKey,
		CortexURL:     cfg.Connectors.CortexURL,
		CortexAPIKey:  cfg.Connectors.CortexAPIKey,
		AnsibleURL:    cfg.Connectors.AnsibleURL,
		AnsibleToken:  cfg.Connectors.AnsibleToken,
		WebhookURL:    cfg.Connectors.WebhookURL,
		NotifyURL:     cfg.Connectors.NotifyURL,
	}, caseRepo)
	if err != nil {
		logger.Error("build connector registry", "error", err)
		os.Exit(1)
	}

	run := executor.NewExecutor(registry, runRepo, logger)

	dispatcher := &alertDispatcher{loader: loader, run: run, logger: logger}

	busConsumer, err := bus.NewConsumer(bus.Config{
		Brokers:        shared.KafkaBrokers,
		ClientIDPrefix: shared.KafkaClientIDPrefix,
		GroupID:        getEnv("SOAR_GROUP_ID", "soar"),
		Topics:         []string{bus.TopicAlerts},
	})
	if err != nil {
		logger.Error("build consumer", "error", err)
		os.Exit(1)
	}
	defer busConsumer.Close()

	go func() {
		if err := busConsumer.Run(ctx, dispatcher.Handle); err != nil && ctx.Err() == nil {
			logger.Error("consumer loop exited", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.HandleFunc("GET /playbooks", func(w http.ResponseWriter, r *http.Request) { listPlaybooksHandler(w, r, loader) })
	mux.HandleFunc("POST /playbooks/{id}/execute", func(w http.ResponseWriter, r *http.Request) {
		executePlaybookHandler(w, r, loader, run)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Server.Port)
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

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced shutdown", "error", err)
	}

	logger.Info("soar service stopped")
}

// alertDispatcher matches incoming alerts against cached playbooks and runs
// every playbook that matches.
type alertDispatcher struct {
	loader *playbook.Loader
	run    *executor.Executor
	logger *slog.Logger
}

func (d *alertDispatcher) Handle(ctx context.Context, msg bus.Message) error {
	alert, err := decodeAlert(msg.Value)
	if err != nil {
		d.logger.Error("decode alert", "error", err)
		return nil
	}

	for _, pb := range d.loader.Cached() {
		if pb.TenantID != "" && pb.TenantID != alert.TenantID {
			continue
		}
		if !d.run.Matches(pb, alert) {
			continue
		}
		results := d.run.Run(ctx, pb, alert)
		for _, res := range results {
			if res.Err != nil {
				d.logger.Warn("playbook action failed", "playbook", pb.Name, "action", res.ActionName, "error", res.Err)
			}
		}
	}
	return nil
}

// wireAlert mirrors the JSON shape produced by the detection service's alert
// encoder. It is decoded independently rather than importing that service's
// internal package, since attack_mapping there is a single nested
// tactics/techniques object rather than the flat pair list playbook.Alert
// triggers and templates expect.
type wireAlert struct {
	ID            string                 `json:"id"`
	TenantID      string                 `json:"tenant_id"`
	RuleID        string                 `json:"rule_id"`
	RuleName      string                 `json:"rule_name"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Severity      string                 `json:"severity"`
	Confidence    float64                `json:"confidence"`
	Status        string                 `json:"status"`
	MatchedFields map[string]interface{} `json:"matched_fields"`
	AttackMapping *wireAttackMapping      `json:"attack_mapping"`
	Tags          []string               `json:"tags"`
	Source        playbook.AlertSource   `json:"source"`
	CreatedAt     time.Time              `json:"created_at"`
	Metadata      map[string]interface{} `json:"metadata"`
}

type wireAttackMapping struct {
	Techniques []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"techniques"`
	Tactics []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"tactics"`
}

func decodeAlert(raw []byte) (*playbook.Alert, error) {
	var w wireAlert
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("unmarshal alert: %w", err)
	}

	a := &playbook.Alert{
		ID:            w.ID,
		TenantID:      w.TenantID,
		RuleID:        w.RuleID,
		RuleName:      w.RuleName,
		Title:         w.Title,
		Description:   w.Description,
		Severity:      w.Severity,
		Confidence:    w.Confidence,
		Status:        w.Status,
		MatchedFields: w.MatchedFields,
		Tags:          w.Tags,
		Source:        w.Source,
		CreatedAt:     w.CreatedAt,
		Metadata:      w.Metadata,
	}

	if w.AttackMapping != nil {
		// Pair tactics and techniques positionally: the mitre mapper
		// produces them in matching order for each matched technique.
		n := len(w.AttackMapping.Techniques)
		if len(w.AttackMapping.Tactics) > n {
			n = len(w.AttackMapping.Tactics)
		}
		for i := 0; i < n; i++ {
			var tactic, technique string
			if i < len(w.AttackMapping.Tactics) {
				tactic = w.AttackMapping.Tactics[i].Name
			}
			if i < len(w.AttackMapping.Techniques) {
				technique = w.AttackMapping.Techniques[i].Name
			}
			a.AttackMapping = append(a.AttackMapping, playbook.AttackMapping{Tactic: tactic, Technique: technique})
		}
	}

	return a, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"soar"}`)
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ready","service":"soar"}`)
}

func listPlaybooksHandler(w http.ResponseWriter, r *http.Request, loader *playbook.Loader) {
	w.Header().Set("Content-Type", "application/json")

	cached := loader.Cached()
	out := make([]map[string]interface{}, 0, len(cached))
	for _, pb := range cached {
		out = append(out, map[string]interface{}{
			"id":      pb.ID,
			"name":    pb.Name,
			"enabled": pb.Enabled,
			"version": pb.Version,
			"actions": len(pb.Actions),
		})
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"playbooks": out})
}

func executePlaybookHandler(w http.ResponseWriter, r *http.Request, loader *playbook.Loader, run *executor.Executor) {
	w.Header().Set("Content-Type", "application/json")

	id := r.PathValue("id")
	pb, err := loader.LoadByID(r.Context(), id)
	if err != nil || pb == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"playbook not found"}`)
		return
	}

	var alert playbook.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
		return
	}

	results := run.Run(r.Context(), pb, &alert)
	out := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		entry := map[string]interface{}{
			"action":      res.ActionName,
			"type":        res.ActionType,
			"status":      res.Status,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		out = append(out, entry)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"playbook_id": pb.ID, "results": out})
}

func postgresConfigFromURL(dsn string, dbCfg config.DatabaseConfig) repository.PostgresConfig {
	cfg := repository.DefaultPostgresConfig()
	cfg.Host = dbCfg.Host
	cfg.Port = dbCfg.Port
	cfg.Username = dbCfg.User
	cfg.Password = dbCfg.Password
	cfg.Database = dbCfg.DBName
	cfg.SSLMode = dbCfg.SSLMode

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
