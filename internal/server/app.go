// Package server builds the application's dependency graph and runs the API
// and worker processes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/api"
	"github.com/scrapeflow/scrapeflow/internal/auth"
	"github.com/scrapeflow/scrapeflow/internal/config"
	"github.com/scrapeflow/scrapeflow/internal/coordinator"
	"github.com/scrapeflow/scrapeflow/internal/extract"
	"github.com/scrapeflow/scrapeflow/internal/id/uuid"
	"github.com/scrapeflow/scrapeflow/internal/logging"
	"github.com/scrapeflow/scrapeflow/internal/ratelimit"
	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/store/memory"
	pgstore "github.com/scrapeflow/scrapeflow/internal/store/postgres"
	"github.com/scrapeflow/scrapeflow/internal/store/redisstore"
	"github.com/scrapeflow/scrapeflow/internal/webhook"
	"github.com/scrapeflow/scrapeflow/internal/worker"
)

const memoryQueueDepth = 1024

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	redisClient *redis.Client
	pgPool      *pgxpool.Pool
	memQueue    *memory.Queue
	headless    *extract.HeadlessFetcher

	queue     scrape.Queue
	fast      scrape.FastStore
	jobs      scrape.JobStore
	keys      scrape.KeyStore
	webhooks  scrape.WebhookStore
	apiServer *api.Server
	workers   []*worker.Worker
}

// Build wires the full dependency graph for the configured providers.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	clock := scrape.ClockFunc(time.Now)
	idGen := uuid.New()

	counter, err := app.setupFastStore(ctx, clock)
	if err != nil {
		return nil, err
	}
	if err := app.setupDurableStore(ctx); err != nil {
		return nil, err
	}

	limiter := ratelimit.New(counter, clock, cfg.RateWindow(), cfg.RateGrace())

	var tokens *auth.TokenVerifier
	if cfg.Auth.JWKSURL != "" {
		tokens = auth.NewTokenVerifier(auth.NewJWKSCache(cfg.Auth.JWKSURL))
		logger.Info("bearer token verification enabled", zap.String("jwks_url", cfg.Auth.JWKSURL))
	}
	authn := auth.New(app.keys, limiter, tokens, logger.Named("auth"))

	coord := coordinator.New(
		app.queue, app.fast, app.jobs,
		idGen, clock, cfg.CacheTTL(),
		logger.Named("coordinator"),
	)

	app.apiServer = api.NewServer(
		coord, authn, app.keys, app.webhooks,
		idGen, clock, cfg, logger.Named("api"),
	)

	app.setupWorkers(clock)
	return app, nil
}

func (a *App) setupFastStore(ctx context.Context, clock scrape.Clock) (scrape.RateCounter, error) {
	if a.cfg.Store.Fast == "redis" {
		a.logger.Info("using redis fast store", zap.String("addr", a.cfg.Redis.Addr))
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
		a.redisClient = client
		a.fast = redisstore.NewFastStore(client)
		a.queue = redisstore.NewQueue(client)
		return redisstore.NewCounter(client), nil
	}

	a.logger.Info("using in-memory fast store")
	a.fast = memory.NewFastStore(clock)
	a.memQueue = memory.NewQueue(memoryQueueDepth)
	a.queue = a.memQueue
	return memory.NewCounter(clock), nil
}

func (a *App) setupDurableStore(ctx context.Context) error {
	if a.cfg.Store.Durable == "postgres" {
		a.logger.Info("using postgres durable store")
		pool, err := pgstore.NewPool(ctx, pgstore.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.pgPool = pool
		if a.jobs, err = pgstore.NewJobStore(pool); err != nil {
			return err
		}
		if a.keys, err = pgstore.NewKeyStore(pool); err != nil {
			return err
		}
		if a.webhooks, err = pgstore.NewWebhookStore(pool); err != nil {
			return err
		}
		return nil
	}

	a.logger.Info("using in-memory durable store")
	a.jobs = memory.NewJobStore()
	a.keys = memory.NewKeyStore()
	a.webhooks = memory.NewWebhookStore()
	return nil
}

func (a *App) setupWorkers(clock scrape.Clock) {
	static := extract.NewStaticFetcher(extract.StaticConfig{
		UserAgent:      a.cfg.Scraper.UserAgent,
		RequestTimeout: time.Duration(a.cfg.Scraper.TimeoutSeconds) * time.Second,
	}, a.logger.Named("fetcher"))

	var headless extract.Fetcher
	if a.cfg.Headless.Enabled {
		hf, err := extract.NewHeadlessFetcher(extract.HeadlessConfig{
			UserAgent:      a.cfg.Scraper.UserAgent,
			MaxConcurrency: a.cfg.Headless.MaxParallel,
			RenderTimeout:  time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		}, a.logger.Named("headless"))
		if err != nil {
			a.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			a.headless = hf
			headless = hf
		}
	}

	llm := extract.NewLLMClient(extract.LLMConfig{
		Endpoint: a.cfg.LLM.Endpoint,
		APIKey:   a.cfg.LLM.APIKey,
		Model:    a.cfg.LLM.Model,
	}, a.logger.Named("llm"))

	extractor := extract.NewService(static, headless, llm, a.logger.Named("extract"))

	var webhookClient *http.Client
	if a.cfg.Webhook.TimeoutSeconds > 0 {
		webhookClient = &http.Client{Timeout: time.Duration(a.cfg.Webhook.TimeoutSeconds) * time.Second}
	}
	dispatcher := webhook.New(a.jobs, a.webhooks, webhookClient, a.logger.Named("webhook"))

	workerCfg := worker.Config{CacheTTL: a.cfg.CacheTTL()}
	for i := 0; i < a.cfg.Worker.Concurrency; i++ {
		a.workers = append(a.workers, worker.New(
			a.queue, a.fast, a.jobs,
			extractor, dispatcher, clock, workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
}

// RunAPI serves HTTP until ctx finishes, then shuts down gracefully.
func (a *App) RunAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("http shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// RunWorkers blocks consuming tasks until ctx finishes.
func (a *App) RunWorkers(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range a.workers {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	a.logger.Info("workers started", zap.Int("count", len(a.workers)))
	wg.Wait()
}

// Close releases infrastructure resources.
func (a *App) Close() {
	if a.memQueue != nil {
		a.memQueue.Close()
	}
	if a.headless != nil {
		if err := a.headless.Close(); err != nil {
			a.logger.Warn("headless close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}
