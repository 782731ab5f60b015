// Package app provides application initialization and dependency wiring.
//
// App is the container that connects configuration, storage, the embedder,
// the ingestion pipeline, the retrieval engine, and the refresh scheduler.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/kurakb/kura/db"
	"github.com/kurakb/kura/internal/config"
	"github.com/kurakb/kura/internal/embedder"
	"github.com/kurakb/kura/internal/ingest"
	"github.com/kurakb/kura/internal/knowledge"
	"github.com/kurakb/kura/internal/log"
	"github.com/kurakb/kura/internal/observability"
	"github.com/kurakb/kura/internal/refresh"
	"github.com/kurakb/kura/internal/retrieve"
	"github.com/kurakb/kura/internal/source"
	"github.com/kurakb/kura/internal/source/notion"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool    *pgxpool.Pool
	Store     *knowledge.Store
	Embedder  *embedder.Embedder
	Pipeline  *ingest.Pipeline
	Engine    *retrieve.Engine
	Scheduler *refresh.Scheduler

	shutdownTracing func(context.Context) error
}

// Setup builds the full application from configuration. The returned App owns
// the database pool; call Close when done.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.OTLPEndpoint,
			Environment: cfg.Environment,
			ServiceName: cfg.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	aiEmbedder, err := embedder.NewGoogleAI(ctx, cfg.EmbedderModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	a.Embedder = embedder.New(aiEmbedder, embedder.Config{
		Dimension:      cfg.EmbedderDimension,
		RetryAttempts:  cfg.EmbeddingRetryAttempts,
		RetryBackoff:   cfg.EmbeddingRetryBackoff,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	a.Store = knowledge.NewStore(knowledge.NewPgxQueries(pool), cfg.EmbedderDimension, logger)

	feed, err := buildFeed(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Pipeline = ingest.New(feed, a.Embedder, a.Store, logger)
	a.Engine = retrieve.New(a.Embedder, a.Store, cfg.TopKDefault, cfg.MinScoreDefault, logger)
	a.Scheduler = refresh.New(a.Pipeline, cfg.RefreshInterval, cfg.RefreshCron, logger)

	return a, nil
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.Logger.Warn("tracing shutdown failed", "error", err)
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}

	return nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	// Every connection needs the vector type registered before use
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func buildFeed(cfg *config.Config, logger log.Logger) (ingest.Source, error) {
	var feeds []source.Feed

	if cfg.NotionToken != "" {
		opts := []notion.ClientOption{}
		if cfg.SourceTimeout > 0 {
			opts = append(opts, notion.WithHTTPClient(&http.Client{Timeout: cfg.SourceTimeout}))
		}
		client, err := notion.NewClient(cfg.NotionToken, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("init notion client: %w", err)
		}
		feeds = append(feeds, notion.NewFeed(client, cfg.SourceMaxDocs, logger))
	}

	if len(feeds) == 0 {
		return nil, fmt.Errorf("no document feeds configured, set NOTION_TOKEN")
	}
	if len(feeds) == 1 {
		return feeds[0], nil
	}
	return source.NewMulti(feeds...), nil
}
