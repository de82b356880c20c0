package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/catalog"
	"github.com/trogers1052/twstock-service/internal/config"
	"github.com/trogers1052/twstock-service/internal/database"
	"github.com/trogers1052/twstock-service/internal/fetcher"
	"github.com/trogers1052/twstock-service/internal/kafka"
	"github.com/trogers1052/twstock-service/internal/orchestrator"
	"github.com/trogers1052/twstock-service/internal/pipeline"
)

// app holds the wired components shared by the sub-commands
type app struct {
	db       *database.DB
	redis    *redis.Client
	catalog  *catalog.Cache
	updater  *pipeline.Updater
	producer *kafka.Producer
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetLogger(logger)

	a := &app{db: db}

	var loader catalog.Loader = catalog.NewChainLoader(logger,
		catalog.LoaderFunc(db.LoadCatalog),
		catalog.BackupLoader{},
	)
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		loader = catalog.NewRedisLoader(a.redis, cfg.Redis.Key, cfg.Redis.TTL.Duration, loader, logger)
	}
	a.catalog = catalog.NewCache(loader, catalog.WithTTL(cfg.Catalog.TTL.Duration), catalog.WithLogger(logger))

	orch := orchestrator.New(
		fetcher.NewTWSEFetcher(sourceOptions(cfg.Sources.TWSE)...),
		fetcher.NewTPExFetcher(sourceOptions(cfg.Sources.TPEx)...),
		fetcher.NewYahooFetcher(sourceOptions(cfg.Sources.Yahoo)...),
		orchestrator.WithCatalog(a.catalog),
		orchestrator.WithLogger(logger),
	)

	opts := []pipeline.Option{
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithBatchTimeout(cfg.Pipeline.BatchTimeout.Duration),
		pipeline.WithSymbolLimit(cfg.Pipeline.SymbolLimit),
		pipeline.WithCatalog(a.catalog),
		pipeline.WithLogger(logger),
	}
	if start, err := calendar.ParseDate(cfg.Pipeline.DefaultStart); err == nil {
		opts = append(opts, pipeline.WithDefaultStart(start))
	}
	if cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, logger)
		opts = append(opts, pipeline.WithPublisher(a.producer))
	}
	a.updater = pipeline.NewUpdater(db, orch, opts...)

	return a, nil
}

// sourceOptions maps a source section onto fetcher options; empty fields keep the fetcher defaults
func sourceOptions(s config.SourceConfig) []fetcher.Option {
	opts := []fetcher.Option{fetcher.WithLogger(logger)}
	if s.BaseURL != "" {
		opts = append(opts, fetcher.WithBaseURL(s.BaseURL))
	}
	if s.AltBaseURL != "" {
		opts = append(opts, fetcher.WithAltBaseURL(s.AltBaseURL))
	}
	if s.Timeout.Duration > 0 {
		opts = append(opts, fetcher.WithTimeout(s.Timeout.Duration))
	}
	if s.Interval.Duration > 0 {
		opts = append(opts, fetcher.WithRequestInterval(s.Interval.Duration))
	}
	return opts
}

func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close Kafka producer")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.db.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close database")
	}
}

// shutdownTimeout bounds graceful HTTP shutdown
const shutdownTimeout = 10 * time.Second
