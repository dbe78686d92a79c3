// Package backend opens the storage and cache selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pilab-dev/shadow-oauth/boltdb"
	"github.com/pilab-dev/shadow-oauth/cache"
	rediscache "github.com/pilab-dev/shadow-oauth/cache/redis"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/memstore"
	"github.com/pilab-dev/shadow-oauth/mongodb"
	"github.com/pilab-dev/shadow-oauth/postgres"
)

// RedisKeyPrefix namespaces cache entries in a shared redis.
const RedisKeyPrefix = "shadow-oauth:"

// Backend bundles the repositories the server runs on.
type Backend struct {
	Credentials domain.CredentialStore
	Users       domain.UserRepository
	// Checks are the health probes for the opened dependencies, by name.
	Checks map[string]func(ctx context.Context) error

	closers []func(ctx context.Context) error
}

// Open connects the configured store and, when enabled, wraps the credential
// store with the token cache. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.ServerConfig, logger log.Logger) (*Backend, error) {
	b := &Backend{Checks: make(map[string]func(ctx context.Context) error)}

	if err := b.openStore(ctx, cfg); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	if err := b.openCache(ctx, cfg, logger); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	logger.Info(ctx, "backend opened", log.Fields{
		"store": cfg.StoreBackend,
		"cache": cfg.CacheBackend,
	})

	return b, nil
}

func (b *Backend) openStore(ctx context.Context, cfg *config.ServerConfig) error {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		b.Credentials = memstore.NewCredentialStore(domain.SystemClock)
		b.Users = memstore.NewUserStore()

	case config.StoreMongoDB:
		client, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		b.onClose(func(ctx context.Context) error {
			mongodb.Close(ctx, client)
			return nil
		})
		b.Checks["mongodb"] = func(ctx context.Context) error { return mongodb.Ping(ctx, client) }

		if b.Credentials, err = mongodb.NewCredentialRepository(ctx, db, domain.SystemClock); err != nil {
			return err
		}
		if b.Users, err = mongodb.NewUserRepository(ctx, db); err != nil {
			return err
		}

	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		b.onClose(func(context.Context) error { return db.Close() })
		b.Checks["postgres"] = db.PingContext

		b.Credentials = postgres.NewCredentialRepository(db, domain.SystemClock)
		b.Users = postgres.NewUserRepository(db)

	case config.StoreBolt:
		db, err := boltdb.Open(cfg.BoltPath)
		if err != nil {
			return err
		}
		b.onClose(func(context.Context) error { return db.Close() })

		b.Credentials = boltdb.NewCredentialRepository(db, domain.SystemClock)
		b.Users = boltdb.NewUserRepository(db)

	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return nil
}

func (b *Backend) openCache(ctx context.Context, cfg *config.ServerConfig, logger log.Logger) error {
	var tokens cache.TokenStore

	switch cfg.CacheBackend {
	case config.CacheNone, "":
		return nil

	case config.CacheMemory:
		mem := cache.NewMemoryTokenStore(cfg.CacheTTL)
		b.onClose(func(context.Context) error {
			mem.Close()
			return nil
		})
		tokens = mem

	case config.CacheRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.onClose(func(context.Context) error { return client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		b.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		tokens = rediscache.NewTokenStore(client, RedisKeyPrefix)

	default:
		return fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	b.Credentials = cache.NewCachedStore(b.Credentials, tokens, cfg.CacheTTL, domain.SystemClock, logger)

	return nil
}

func (b *Backend) onClose(fn func(ctx context.Context) error) {
	b.closers = append(b.closers, fn)
}

// Close releases the backend in reverse opening order.
func (b *Backend) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil

	return errors.Join(errs...)
}
