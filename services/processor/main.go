package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/bus"
	pkgconfig "github.com/nightwatch-siem/nightwatch/pkg/config"
	"github.com/nightwatch-siem/nightwatch/pkg/dedup"
	"github.com/nightwatch-siem/nightwatch/pkg/enrich"
	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/pkg/index"
	"github.com/nightwatch-siem/nightwatch/pkg/repository"
	"github.com/nightwatch-siem/nightwatch/services/processor/internal/archive"
	"github.com/nightwatch-siem/nightwatch/services/processor/internal/config"
	"github.com/nightwatch-siem/nightwatch/services/processor/internal/pipeline"
)

const serviceName = "processor"

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

	redisConn, err := repository.NewRedisConn(redisConfigFromURL(shared.RedisDSN, shared.RedisMaxConnections))
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer redisConn.Close()

	dedupCache := repository.NewRedisCache(redisConn, "dedup")
	dedupChecker := dedup.New(dedupCache, secondsToDuration(shared.DedupWindowSeconds), shared.DedupCacheSize)

	indexStore, err := index.NewFromAddresses(shared.ESHosts)
	if err != nil {
		logger.Error("build index store", "error", err)
		os.Exit(1)
	}
	if err := indexStore.EnsureTemplate(ctx); err != nil {
		logger.Warn("ensure index template", "error", err)
	}

	geoip, err := enrich.NewGeoIPEnricher(cfg.GeoIPCityDBPath, cfg.GeoIPASNDBPath, cfg.LookupCacheSize, 24*time.Hour)
	if err != nil {
		logger.Warn("geoip disabled", "error", err)
		geoip, _ = enrich.NewGeoIPEnricher("", "", cfg.LookupCacheSize, 0)
	}
	dnsEnricher := enrich.NewDNSEnricher(cfg.LookupCacheSize, cfg.DNSCacheTTL, cfg.DNSTimeout)

	threatEnricher := enrich.NewThreatEnricher()
	if err := threatEnricher.LoadFile(shared.ThreatIntelPath); err != nil {
		logger.Warn("threat intel feed load failed", "error", err)
	}

	userEnricher := enrich.NewUserEnricher(enrich.UserDirectoryConfig{
		Endpoint:     shared.LDAPURL,
		BindDN:       shared.LDAPBindDN,
		BindPassword: shared.LDAPBindPassword,
	}, cfg.LookupCacheSize, time.Hour)

	archiver, err := archive.New(ctx, archive.Config{Bucket: shared.ArchiveBucket, Prefix: "dead-letter"})
	if err != nil {
		logger.Error("build archiver", "error", err)
		os.Exit(1)
	}

	deadLetterProducer, err := bus.NewProducer(bus.Config{
		Brokers:        shared.KafkaBrokers,
		ClientIDPrefix: shared.KafkaClientIDPrefix,
	})
	if err != nil {
		logger.Error("build dead-letter producer", "error", err)
		os.Exit(1)
	}
	defer deadLetterProducer.Close()

	detectionOut := make(chan *event.Event, cfg.DetectionChannelSize)

	pl := &pipeline.Pipeline{
		Dedup:           dedupChecker,
		Index:           indexStore,
		GeoIP:           geoip,
		DNS:             dnsEnricher,
		Threat:          threatEnricher,
		Users:           userEnricher,
		Archive:         archiver,
		DeadLetter:      deadLetterProducer,
		DeadLetterTopic: shared.DeadLetterTopic,
		EnrichedOut:     deadLetterProducer,
		DetectionOut:    detectionOut,
		Retry: pipeline.RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   millisToDuration(shared.IndexRetryBaseMS),
			MaxDelay:    millisToDuration(shared.IndexRetryMaxMS),
		},
		Logger: logger,
	}

	consumer, err := bus.NewConsumer(bus.Config{
		Brokers:        shared.KafkaBrokers,
		ClientIDPrefix: shared.KafkaClientIDPrefix,
		GroupID:        cfg.GroupID,
		Topics:         []string{bus.TopicRawLogs},
	})
	if err != nil {
		logger.Error("build consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	go func() {
		for ev := range detectionOut {
			_ = ev // Detection reads enriched_logs from the bus; this loop is the channel's only reader and keeps it from filling.
		}
	}()

	go func() {
		if err := consumer.Run(ctx, pl.Handle); err != nil && ctx.Err() == nil {
			logger.Error("consumer loop exited", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", "service", serviceName)
	cancel()
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

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }
func millisToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
