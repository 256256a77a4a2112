package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vheim/sage"
	"github.com/vheim/sage/internal/config"
	"github.com/vheim/sage/observer"
	"github.com/vheim/sage/provider/embcache"
	"github.com/vheim/sage/provider/resolve"
	"github.com/vheim/sage/store/postgres"
	"github.com/vheim/sage/store/sqlite"
)

// deps holds the wired components shared by the subcommands. close releases
// everything in reverse wiring order.
type deps struct {
	cfg       config.Config
	logger    *slog.Logger
	store     sage.Store
	embedding sage.EmbeddingProvider

	closers []func()
	inst    *observer.Instruments
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps wires store, embedding provider, cache, and observer from config.
func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{cfg: cfg, logger: logger}

	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("init observer: %w", err)
		}
		d.inst = inst
		d.closers = append(d.closers, func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutCtx); err != nil {
				logger.Warn("observer shutdown failed", "error", err)
			}
		})
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		d.close()
		return nil, err
	}
	d.store = store
	d.closers = append(d.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	})

	embedding, err := buildEmbedding(cfg, logger, d)
	if err != nil {
		d.close()
		return nil, err
	}
	d.embedding = embedding
	return d, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (sage.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		return sqlite.New(cfg.Store.Path, sqlite.WithLogger(logger)), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		st := &pooledStore{
			Store: postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions)),
			pool:  pool,
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// pooledStore ties the pgx pool lifetime to the store. The postgres store
// itself does not own its pool.
type pooledStore struct {
	*postgres.Store
	pool *pgxpool.Pool
}

func (p *pooledStore) Close() error {
	p.pool.Close()
	return nil
}

// buildEmbedding resolves the embedding provider and layers the Redis cache,
// rate limiter, and observer on top when configured.
func buildEmbedding(cfg config.Config, logger *slog.Logger, d *deps) (sage.EmbeddingProvider, error) {
	embedding, err := resolve.EmbeddingProvider(resolve.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Cache.RedisAddr != "" {
		redis, err := embcache.NewRedisCache(cfg.Cache.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.closers = append(d.closers, redis.Close)
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		embedding = embcache.New(embedding, redis,
			embcache.WithTTL(ttl), embcache.WithLogger(logger))
	}

	embedding = sage.WithEmbeddingRetry(embedding)
	if cfg.Embedding.RPM > 0 {
		embedding = sage.WithEmbeddingRateLimit(embedding, sage.RPM(cfg.Embedding.RPM))
	}

	if d.inst != nil {
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, d.inst)
	}
	return embedding, nil
}

// buildProvider resolves the chat provider with retries and observability.
func buildProvider(cfg config.Config, logger *slog.Logger, inst *observer.Instruments) (sage.Provider, error) {
	provider, err := resolve.Provider(resolve.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	provider = sage.WithRetry(provider, sage.RetryLogger(logger))
	if inst != nil {
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
	}
	return provider, nil
}
