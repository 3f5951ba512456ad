package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-price-must-flow/internal/alert"
	"github.com/Veraticus/the-price-must-flow/internal/cache"
	"github.com/Veraticus/the-price-must-flow/internal/config"
	"github.com/Veraticus/the-price-must-flow/internal/embedding"
	"github.com/Veraticus/the-price-must-flow/internal/matching"
	"github.com/Veraticus/the-price-must-flow/internal/metrics"
	"github.com/Veraticus/the-price-must-flow/internal/pipeline"
	"github.com/Veraticus/the-price-must-flow/internal/pricing"
	"github.com/Veraticus/the-price-must-flow/internal/review"
	"github.com/Veraticus/the-price-must-flow/internal/service"
	"github.com/Veraticus/the-price-must-flow/internal/storage"
	"github.com/Veraticus/the-price-must-flow/internal/vendorrules"
)

// app holds every wired component for one command invocation.
type app struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	catalog   service.CatalogStore
	embedder  *embedding.Provider
	rules     *vendorrules.Rules
	matcher   *matching.Matcher
	validator *pricing.Validator
	updater   *pricing.Updater
	reviews   *review.Manager
	coord     *pipeline.Coordinator
	metrics   *metrics.Registry
	async     *alert.AsyncSink
	closers   []func() error
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// openStore opens and migrates the configured database.
func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store, metrics: metrics.NewRegistry()}
	a.closers = append(a.closers, store.Close)

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	snapshots, err := a.cacheStore(ctx)
	if err != nil {
		return err
	}
	a.catalog = a.store
	if snapshots != nil {
		a.catalog = cache.NewCachedCatalog(a.store, snapshots, cfg.Cache.TTL)
	}

	if err := a.store.WarmMappingCache(ctx); err != nil {
		slog.Warn("Failed to warm mapping cache", "error", err)
	}

	a.embedder, err = embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	if snapshots != nil {
		a.embedder = a.embedder.WithCache(snapshots)
	}

	if cfg.Vendors.RulesPath != "" {
		a.rules, err = vendorrules.Load(cfg.Vendors.RulesPath)
	} else {
		a.rules, err = vendorrules.Default()
	}
	if err != nil {
		return err
	}

	a.matcher, err = matching.New(a.catalog, a.embedder, a.rules, cfg.Matching)
	if err != nil {
		return err
	}

	a.validator, err = pricing.NewValidator(cfg.Validator)
	if err != nil {
		return err
	}

	a.updater, err = pricing.NewUpdater(a.store, a.validator, a.alertSink(), cfg.Updater)
	if err != nil {
		return err
	}

	a.reviews, err = review.NewManager(a.store, a.catalog,
		review.WithLinker(a.store),
		review.WithSuggester(a.matcher),
		review.WithEmbedder(a.embedder),
		review.WithMaxSuggestions(cfg.Review.MaxSuggestions))
	if err != nil {
		return err
	}

	a.coord, err = pipeline.New(a.matcher, a.updater, a.reviews, cfg.Pipeline,
		pipeline.WithMappings(a.store),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithVendorRules(a.rules))
	return err
}

func (a *app) cacheStore(ctx context.Context) (cache.Store, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		r := a.cfg.Cache.Redis
		store, err := cache.NewRedisStore(ctx, r.Addr, r.Password, r.DB, r.Prefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.CacheMemory:
		store := cache.NewMemoryStore(a.cfg.Cache.TTL)
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, nil
	}
}

// alertSink fans alerts out to every configured sink behind a non-blocking
// buffer, counting each one.
func (a *app) alertSink() service.AlertSink {
	cfg := a.cfg.Alerts
	var sinks []service.AlertSink
	if cfg.Log {
		sinks = append(sinks, alert.NewLogSink(slog.Default()))
	}
	if cfg.Store {
		sinks = append(sinks, alert.NewStoreSink(a.store))
	}
	if cfg.Kafka.Brokers != "" {
		kafkaSink := alert.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, kafkaSink.Close)
		sinks = append(sinks, kafkaSink)
	}

	a.async = alert.NewAsyncSink(alert.NewMultiSink(sinks...), cfg.Buffer, cfg.Timeout)
	a.closers = append(a.closers, a.async.Close)
	return alert.NewObservedSink(a.async, a.metrics)
}

// Close releases resources in reverse order of acquisition so queued alerts
// are delivered before their sinks close.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.async != nil {
		if dropped := a.async.Dropped(); dropped > 0 {
			slog.Warn("Alerts dropped while the buffer was full", "dropped", dropped)
		}
	}
	return errors.Join(errs...)
}
