// Package app builds the harvester's long-lived services from configuration
// and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/api"
	"github.com/JakeFAU/jobpost-harvester/internal/clock/system"
	"github.com/JakeFAU/jobpost-harvester/internal/config"
	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/detail"
	"github.com/JakeFAU/jobpost-harvester/internal/dispatcher"
	"github.com/JakeFAU/jobpost-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/jobpost-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/jobpost-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/jobpost-harvester/internal/hash/sha256"
	"github.com/JakeFAU/jobpost-harvester/internal/id/uuid"
	"github.com/JakeFAU/jobpost-harvester/internal/listing"
	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
	"github.com/JakeFAU/jobpost-harvester/internal/orchestrator"
	"github.com/JakeFAU/jobpost-harvester/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/jobpost-harvester/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/jobpost-harvester/internal/publisher/pubsub"
	redispublisher "github.com/JakeFAU/jobpost-harvester/internal/publisher/redis"
	"github.com/JakeFAU/jobpost-harvester/internal/segment"
	gcsstorage "github.com/JakeFAU/jobpost-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/jobpost-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/jobpost-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/jobpost-harvester/internal/storage/postgres"
	s3storage "github.com/JakeFAU/jobpost-harvester/internal/storage/s3"
	"github.com/JakeFAU/jobpost-harvester/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	Harvester  *orchestrator.Orchestrator
	Store      crawler.PostingStore
	Runs       crawler.RunStore
	Dispatcher *dispatcher.Dispatcher
	API        *api.Server

	pool           *headless.Pool
	gcsClient      *storage.Client
	pubsubClient   *pubsub.Client
	pubsubPub      *gcppublisher.Publisher
	redisPublisher *redispublisher.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("archive", cfg.Archive.Backend),
		zap.String("publisher", cfg.Publisher.Backend),
	)

	ok := false
	defer func() {
		if !ok {
			a.Close(context.Background())
		}
	}()

	if err := a.setupStores(ctx); err != nil {
		return nil, err
	}
	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	fetch, err := a.setupFetcher(blobs)
	if err != nil {
		return nil, err
	}

	table := segment.TableFromKeywords(cfg.Segmenter.Noise, cfg.Segmenter.LocationMarker, cfg.Segmenter.Triggers)
	segmenter, err := segment.New(table)
	if err != nil {
		return nil, fmt.Errorf("segmenter init failed: %w", err)
	}
	parser, err := listing.NewParser(cfg.Listing, cfg.Harvest.Origin)
	if err != nil {
		return nil, fmt.Errorf("listing parser init failed: %w", err)
	}

	clock := system.New()
	ids := uuid.New()
	extractor := detail.NewExtractor(fetch, segmenter, cfg.Headless.Summary)
	w := worker.New(extractor, a.Store, publisher, clock, worker.Config{Topic: cfg.Publisher.Topic}, logger)

	a.Harvester, err = orchestrator.New(fetch, parser, w, ids, clock, orchestrator.Config{
		SearchURL:    cfg.Harvest.SearchURL,
		Workers:      cfg.Harvest.Workers,
		PageDelayMin: cfg.Harvest.PageDelayMin,
		PageDelayMax: cfg.Harvest.PageDelayMax,
		RunBudget:    cfg.Harvest.RunBudget,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	a.Dispatcher = dispatcher.New(a.Harvester, a.Runs, ids, clock, logger)
	a.API = api.NewServer(a.Dispatcher, a.Store, a.DefaultParams(), logger)

	ok = true
	return a, nil
}

// DefaultParams returns the run parameters described by the harvest config.
func (a *App) DefaultParams() crawler.RunParams {
	return crawler.RunParams{
		Query:       a.cfg.Harvest.Query(),
		MaxPages:    a.cfg.Harvest.MaxPages,
		MaxPostings: a.cfg.Harvest.MaxPostings,
	}
}

func (a *App) setupStores(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case "postgres":
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             a.cfg.Storage.DSN,
			MaxConns:        a.cfg.Storage.MaxConns,
			MinConns:        a.cfg.Storage.MinConns,
			MaxConnLifetime: a.cfg.Storage.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		if a.cfg.Storage.EnsureSchema {
			if err := pgstore.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return fmt.Errorf("postgres schema failed: %w", err)
			}
		}
		store, err := pgstore.NewPostingStoreWithPool(pool)
		if err != nil {
			pool.Close()
			return fmt.Errorf("posting store init failed: %w", err)
		}
		runs, err := pgstore.NewRunStoreWithPool(pool)
		if err != nil {
			store.Close()
			return fmt.Errorf("run store init failed: %w", err)
		}
		a.Store, a.Runs = store, runs
		a.logger.Info("using postgres persistence gateway")
	default:
		a.Store, a.Runs = memorystorage.NewPostingStore(), memorystorage.NewRunStore()
		a.logger.Info("using in-memory persistence gateway")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, a.cfg.Archive.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving raw pages to GCS", zap.String("bucket", a.cfg.Archive.GCS.Bucket))
		return blobs, nil
	case "s3":
		blobs, err := s3storage.New(a.cfg.Archive.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 blob store init failed: %w", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("s3 bucket check failed: %w", err)
		}
		a.logger.Info("archiving raw pages to S3", zap.String("endpoint", a.cfg.Archive.S3.Endpoint), zap.String("bucket", a.cfg.Archive.S3.Bucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(a.cfg.Archive.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving raw pages locally", zap.String("path", a.cfg.Archive.Local.BaseDir))
		return blobs, nil
	case "memory":
		a.logger.Info("archiving raw pages in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	switch a.cfg.Publisher.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.pubsubPub = gcppublisher.New(client)
		a.logger.Info("publishing posting events to Pub/Sub",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
		return a.pubsubPub, nil
	case "redis":
		pub, err := redispublisher.New(ctx, a.cfg.Publisher.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis publisher init failed: %w", err)
		}
		a.redisPublisher = pub
		a.logger.Info("publishing posting events to Redis",
			zap.String("addr", a.cfg.Publisher.Redis.Addr),
			zap.String("channel", a.cfg.Publisher.Topic),
		)
		return pub, nil
	case "memory":
		return memorypublisher.New(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupFetcher(blobs crawler.BlobStore) (crawler.Fetcher, error) {
	headers := a.cfg.HTTP.Headers()
	limiter, err := ratelimit.New(ratelimit.Config{
		MinDelay: a.cfg.RateLimit.MinDelay,
		MaxDelay: a.cfg.RateLimit.MaxDelay,
		MaxRPS:   a.cfg.RateLimit.MaxRPS,
		Burst:    a.cfg.RateLimit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limiter init failed: %w", err)
	}
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.HTTP.Timeout,
		Headers:   headers,
	})
	a.pool, err = headless.NewPool(headless.PoolConfig{
		MaxSessions: a.cfg.Headless.MaxSessions,
		UserAgent:   a.cfg.HTTP.UserAgent,
		ExecPath:    a.cfg.Headless.ExecPath,
	})
	if err != nil {
		return nil, fmt.Errorf("headless pool init failed: %w", err)
	}
	rendered := headless.NewFetcher(a.pool, limiter, headless.Config{
		NavigationTimeout: a.cfg.Headless.NavigationTimeout,
		SettleDelay:       a.cfg.Headless.SettleDelay,
		ReadyTimeout:      a.cfg.Headless.ReadyTimeout,
		SummarySelector:   a.cfg.Headless.Summary.Summary,
		FrameSelector:     a.cfg.Headless.FrameSelector,
		ContentSelector:   a.cfg.Headless.ContentSelector,
		Headers:           headers,
	})
	a.logger.Info("fetchers ready",
		zap.Duration("min_delay", a.cfg.RateLimit.MinDelay),
		zap.Duration("max_delay", a.cfg.RateLimit.MaxDelay),
		zap.Int("max_sessions", a.cfg.Headless.MaxSessions),
	)

	var fetch crawler.Fetcher = fetcher.NewRouter(limiter, static, rendered, a.logger)
	if blobs != nil {
		fetch = fetcher.NewArchiver(fetch, blobs, sha256.New(), system.New(), a.cfg.Archive.Prefix, a.logger)
	}
	return fetch, nil
}

// Serve runs the control API until ctx is canceled, then shuts it down.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.Dispatcher.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.API.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Dispatcher.Shutdown()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close gracefully shuts down the application's clients.
func (a *App) Close(_ context.Context) {
	if a.pubsubPub != nil {
		a.pubsubPub.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.redisPublisher != nil {
		if err := a.redisPublisher.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	a.logger.Info("shutdown complete")
}
