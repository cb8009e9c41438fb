package main

import (
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/auth"
	"github.com/nightwatch-siem/nightwatch/pkg/bus"
	pkgconfig "github.com/nightwatch-siem/nightwatch/pkg/config"
	"github.com/nightwatch-siem/nightwatch/pkg/ratelimit"
	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"github.com/nightwatch-siem/nightwatch/services/collector/internal/config"
	"github.com/nightwatch-siem/nightwatch/services/collector/internal/receiver"
)

const serviceName = "collector"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	shared, err := pkgconfig.Load()
	if err != nil {
		logger.Error("failed to load shared config", "error", err)
		os.Exit(1)
	}

	producer, err := bus.NewProducer(bus.Config{
		Brokers:        shared.KafkaBrokers,
		ClientIDPrefix: shared.KafkaClientIDPrefix,
		MaxMessageBytes: int32(cfg.HTTP.MaxBodySize),
	})
	if err != nil {
		logger.Error("failed to start bus producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	redisConn, err := repository.NewRedisConn(redisConfigFromURL(shared.RedisDSN, shared.RedisMaxConnections))
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	cache := repository.NewRedisCache(redisConn, "auth")
	tokens := auth.NewTokenIssuer(shared.JWTSecret, serviceName, time.Duration(shared.AccessTokenExpireMinutes)*time.Minute)
	users := auth.NewMemoryUserStore()
	login := auth.NewLoginService(users, cache, tokens)
	limiter := ratelimit.New(redisConn)

	cfg.HTTP.MaxBatchEvents = cfg.BatchSize
	cfg.HTTP.RequestQuota = ratelimit.Quota{
		Name:   "ingest_request",
		Limit:  int64(shared.RateLimitDefaultTimes),
		Window: time.Duration(shared.RateLimitDefaultSeconds) * time.Second,
	}
	cfg.HTTP.BatchQuota = ratelimit.Quota{
		Name:   "ingest_batch",
		Limit:  int64(shared.RateLimitBatchTimes),
		Window: time.Duration(shared.RateLimitBatchSeconds) * time.Second,
	}
	cfg.HTTP.EventQuota = ratelimit.Quota{
		Name:   "ingest_event",
		Limit:  int64(shared.RateLimitEventTimes),
		Window: time.Duration(shared.RateLimitEventSeconds) * time.Second,
	}
	cfg.HTTP.LoginQuota = ratelimit.Quota{Name: "login", Limit: 5, Window: time.Minute}

	httpReceiver := receiver.NewHTTPReceiver(cfg.HTTP, producer, tokens, login, limiter, logger)
	if err := httpReceiver.Start(); err != nil {
		logger.Error("failed to start http receiver", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", "service", serviceName)
	if err := httpReceiver.Stop(); err != nil {
		logger.Error("receiver forced to shutdown", "error", err)
	}

	logger.Info("server exited")
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
