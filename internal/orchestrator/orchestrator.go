// Package orchestrator drives a harvest run: it walks listing pages, fans the
// stubs of each page out to a bounded worker pool and stops on exhaustion,
// the page limit, the collection cap, or cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/listing"
	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
	"github.com/JakeFAU/jobpost-harvester/internal/worker"
)

// ListingParser extracts posting stubs from a listing page.
type ListingParser interface {
	Parse(page crawler.RawPage) ([]crawler.PostingStub, error)
}

// Processor handles a single posting stub.
type Processor interface {
	Process(ctx context.Context, runID string, stub crawler.PostingStub) (worker.Outcome, error)
}

// Config controls the orchestrator.
type Config struct {
	SearchURL    string
	Workers      int
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	// RunBudget bounds the wall time of a run; zero means unbounded.
	RunBudget time.Duration
}

// Orchestrator runs harvests. It holds no state between runs.
type Orchestrator struct {
	fetcher   crawler.Fetcher
	parser    ListingParser
	processor Processor
	ids       crawler.IDGenerator
	clock     crawler.Clock
	pauser    pauser
	cfg       Config
	logger    *zap.Logger
}

// New wires an Orchestrator.
func New(
	fetcher crawler.Fetcher,
	parser ListingParser,
	processor Processor,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if fetcher == nil || parser == nil || processor == nil {
		return nil, errors.New("orchestrator: fetcher, parser, and processor are required")
	}
	if cfg.SearchURL == "" {
		return nil, errors.New("orchestrator: search url is required")
	}
	if cfg.PageDelayMin < 0 || cfg.PageDelayMax < cfg.PageDelayMin {
		return nil, fmt.Errorf("orchestrator: invalid page delay range [%s, %s]", cfg.PageDelayMin, cfg.PageDelayMax)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher:   fetcher,
		parser:    parser,
		processor: processor,
		ids:       ids,
		clock:     clock,
		pauser:    timerPauser{},
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
	}, nil
}

type tally struct {
	mu                sync.Mutex
	postingsFailed    int
	detailUnavailable int
}

// Run executes one harvest and returns its result. Cancellation, the page
// limit, exhaustion and the cap are all normal termination; an error is only
// returned for invalid parameters.
func (o *Orchestrator) Run(ctx context.Context, params crawler.RunParams) (crawler.RunResult, error) {
	if params.MaxPages < 1 {
		return crawler.RunResult{}, fmt.Errorf("orchestrator: max pages must be >= 1, got %d", params.MaxPages)
	}
	if params.MaxPostings < 0 {
		return crawler.RunResult{}, fmt.Errorf("orchestrator: max postings must be >= 0, got %d", params.MaxPostings)
	}
	if params.RunID == "" {
		if o.ids == nil {
			return crawler.RunResult{}, errors.New("orchestrator: run id is required")
		}
		id, err := o.ids.NewID()
		if err != nil {
			return crawler.RunResult{}, fmt.Errorf("generate run id: %w", err)
		}
		params.RunID = id
	}
	if o.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunBudget)
		defer cancel()
	}

	log := o.logger.With(zap.String("run_id", params.RunID))
	result := crawler.RunResult{RunID: params.RunID, StartedAt: o.now()}
	caps := newBudget(params.MaxPostings)
	counts := &tally{}

	log.Info("run started",
		zap.String("keyword", params.Query.Keyword),
		zap.Int("max_pages", params.MaxPages),
		zap.Int("max_postings", params.MaxPostings),
	)

	for page := 1; page <= params.MaxPages; page++ {
		if page > 1 {
			o.pauser.Pause(ctx, randomDelay(o.cfg.PageDelayMin, o.cfg.PageDelayMax))
		}
		if ctx.Err() != nil {
			result.StopReason = crawler.StopCanceled
			break
		}

		stubs, pageURL, err := o.listPage(ctx, params.Query, page)
		if err != nil {
			if ctx.Err() != nil {
				result.StopReason = crawler.StopCanceled
				break
			}
			result.PagesFailed++
			metrics.ObserveListingPage("failed")
			log.Warn("listing page skipped",
				zap.Int("page", page),
				zap.String("url", pageURL),
				zap.String("stage", "listing"),
				zap.Error(err),
			)
			continue
		}
		result.PagesVisited++
		if len(stubs) == 0 {
			metrics.ObserveListingPage("empty")
			log.Info("no postings on page, results exhausted", zap.Int("page", page))
			result.StopReason = crawler.StopExhausted
			break
		}
		metrics.ObserveListingPage("ok")
		log.Debug("listing page parsed", zap.Int("page", page), zap.Int("stubs", len(stubs)))

		o.processPage(ctx, log.With(zap.Int("page", page)), params.RunID, stubs, caps, counts)

		if caps.full() {
			result.StopReason = crawler.StopCapReached
			break
		}
	}
	if result.StopReason == "" {
		result.StopReason = crawler.StopMaxPages
		if ctx.Err() != nil {
			result.StopReason = crawler.StopCanceled
		}
	}

	result.Collected = caps.count()
	result.PostingsFailed = counts.postingsFailed
	result.DetailUnavailable = counts.detailUnavailable
	result.FinishedAt = o.now()
	metrics.ObserveRun(string(result.StopReason))

	log.Info("run finished",
		zap.String("stop_reason", string(result.StopReason)),
		zap.Int("collected", result.Collected),
		zap.Int("pages_visited", result.PagesVisited),
		zap.Int("pages_failed", result.PagesFailed),
		zap.Int("postings_failed", result.PostingsFailed),
		zap.Int("detail_unavailable", result.DetailUnavailable),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (o *Orchestrator) listPage(ctx context.Context, q crawler.ListingQuery, page int) ([]crawler.PostingStub, string, error) {
	q.Page = page
	req := crawler.FetchRequest{URL: o.cfg.SearchURL, Kind: crawler.FetchListing, Query: listing.Query(q)}
	raw, err := o.fetcher.Fetch(ctx, req)
	pageURL := o.cfg.SearchURL + "?" + req.Query.Encode()
	if err != nil {
		return nil, pageURL, err
	}
	stubs, err := o.parser.Parse(raw)
	if err != nil {
		return nil, pageURL, err
	}
	return stubs, pageURL, nil
}

// processPage schedules stubs until the page is done, the cap is reserved in
// full, or ctx ends. In-flight postings are always waited for.
func (o *Orchestrator) processPage(ctx context.Context, log *zap.Logger, runID string, stubs []crawler.PostingStub, caps *budget, counts *tally) {
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)

	for _, stub := range stubs {
		if ctx.Err() != nil {
			break
		}
		if !caps.reserve() {
			// In-flight postings may still fail and hand their slot back.
			_ = g.Wait()
			if ctx.Err() != nil || !caps.reserve() {
				break
			}
		}
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			o.processOne(ctx, log, runID, stub, caps, counts)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) processOne(ctx context.Context, log *zap.Logger, runID string, stub crawler.PostingStub, caps *budget, counts *tally) {
	out, err := o.processor.Process(ctx, runID, stub)
	if err != nil {
		caps.release()
		if ctx.Err() != nil {
			return
		}
		counts.mu.Lock()
		counts.postingsFailed++
		counts.mu.Unlock()
		metrics.ObservePosting("failed")
		log.Warn("posting not collected",
			zap.String("url", stub.URL),
			zap.String("stage", "persist"),
			zap.Error(err),
		)
		return
	}
	caps.commit()
	metrics.ObservePosting("stored")
	if out.DetailUnavailable {
		counts.mu.Lock()
		counts.detailUnavailable++
		counts.mu.Unlock()
	}
}

func (o *Orchestrator) now() time.Time {
	if o.clock == nil {
		return time.Now().UTC()
	}
	return o.clock.Now().UTC()
}
