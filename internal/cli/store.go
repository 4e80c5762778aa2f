package cli

import (
	"context"
	"fmt"
	"time"

	"quiz-analytics-service/internal/app"
	"quiz-analytics-service/internal/config"
	"quiz-analytics-service/internal/infra/memory"
	mongostore "quiz-analytics-service/internal/infra/mongo"
	pgstore "quiz-analytics-service/internal/infra/postgres"
	redisstore "quiz-analytics-service/internal/infra/redis"
	"quiz-analytics-service/internal/infra/sqlite"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// openStore builds the QuizStore for the configured driver. The returned
// closer releases its connections.
func openStore(ctx context.Context, cfg config.Config) (app.QuizStore, func(), error) {
	log := logrus.WithField("driver", cfg.Storage.Driver)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewQuizStore(), func() {}, nil

	case config.DriverMongo:
		if cfg.Mongo.URI == "" {
			return nil, nil, fmt.Errorf("mongo uri not configured")
		}
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.PoolSize)
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.NewQuizStore(client.Database(cfg.Mongo.Database), cfg.Mongo.Collection)
		if err := store.InitializeIndexes(ctx); err != nil {
			mongostore.Disconnect(client)
			return nil, nil, err
		}
		log.WithField("database", cfg.Mongo.Database).Info("connected to mongo")
		return store, func() { mongostore.Disconnect(client) }, nil

	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info("connected to postgres")
		return pgstore.NewQuizStore(pool), pool.Close, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.SQLite.Path).Info("opened sqlite store")
		return store, func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Warn("error closing sqlite")
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// openCache picks Redis for the quiz cache and feed registry when an address
// is configured, in-process maps otherwise.
func openCache(cfg config.Config, store app.QuizStore) (app.QuizCache, app.FeedRepository, func()) {
	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
	if cfg.Redis.Addr == "" {
		return memory.NewQuizCache(store, cacheTTL), memory.NewFeedStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	feedTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	logrus.WithField("addr", cfg.Redis.Addr).Info("using redis cache")
	feeds := redisstore.NewFeedStore(client, feedTTL)
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go feeds.Refresh(refreshCtx, feedTTL/2)
	return redisstore.NewQuizCache(client, store, cacheTTL), feeds, func() {
		stopRefresh()
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("error closing redis client")
		}
	}
}
