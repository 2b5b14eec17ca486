// Package worker runs the per-posting pipeline: extract the detail page,
// merge it with the listing stub, persist it and announce it.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
	"github.com/JakeFAU/jobpost-harvester/internal/normalize"
)

// Extractor reads a posting detail page.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (crawler.SummaryFacts, crawler.SectionedContent, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a crawler.PostingEvent per stored posting. Empty disables publishing.
	Topic string
}

// Outcome describes a posting that was stored.
type Outcome struct {
	Posting  crawler.NormalizedPosting
	Inserted bool
	// DetailUnavailable is set when the record was built from listing data and defaults.
	DetailUnavailable bool
}

// Worker processes one posting stub at a time and is safe for concurrent use.
type Worker struct {
	extractor Extractor
	store     crawler.PostingStore
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher may be nil.
func New(
	extractor Extractor,
	store crawler.PostingStore,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		extractor: extractor,
		store:     store,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Process turns stub into a stored NormalizedPosting. Detail failures degrade
// to defaults; only persistence failures are returned, as *crawler.PersistenceError.
func (w *Worker) Process(ctx context.Context, runID string, stub crawler.PostingStub) (Outcome, error) {
	log := w.logger.With(zap.String("run_id", runID), zap.String("url", stub.URL))

	summary, content, err := w.extractor.Extract(ctx, stub.URL)
	degraded := false
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("extract detail: %w", ctx.Err())
		}
		degraded = true
		stage := detailStage(err)
		metrics.ObserveDetailUnavailable(stage)
		log.Warn("detail unavailable, using defaults",
			zap.String("stage", stage),
			zap.Error(err),
		)
	}

	posting := normalize.Stamp(normalize.Merge(stub, summary, content), runID, w.clock.Now().UTC())

	if err := w.store.UpsertCompany(ctx, normalize.Company(posting)); err != nil {
		log.Error("upsert company failed", zap.String("stage", "persist"), zap.String("company", posting.CompanyName), zap.Error(err))
		return Outcome{}, asPersistence("company", posting.CompanyName, err)
	}
	inserted, err := w.store.UpsertPosting(ctx, posting)
	if err != nil {
		log.Error("upsert posting failed", zap.String("stage", "persist"), zap.String("title", posting.Title), zap.Error(err))
		return Outcome{}, asPersistence("posting", posting.CompanyName+"/"+posting.Title, err)
	}

	w.publish(ctx, posting, inserted, log)

	log.Debug("posting stored",
		zap.String("company", posting.CompanyName),
		zap.String("title", posting.Title),
		zap.Bool("inserted", inserted),
		zap.Bool("detail_unavailable", degraded),
	)
	return Outcome{Posting: posting, Inserted: inserted, DetailUnavailable: degraded}, nil
}

func (w *Worker) publish(ctx context.Context, p crawler.NormalizedPosting, inserted bool, log *zap.Logger) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	event := crawler.PostingEvent{
		RunID:       p.RunID,
		CompanyName: p.CompanyName,
		Title:       p.Title,
		URL:         p.URL,
		Inserted:    inserted,
		HarvestedAt: p.HarvestedAt,
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		log.Warn("publish posting event failed", zap.String("stage", "publish"), zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	log.Debug("published posting event", zap.String("topic", w.cfg.Topic), zap.String("message_id", id))
}

func detailStage(err error) string {
	switch {
	case crawler.IsFetchError(err):
		return "fetch"
	case crawler.IsParseError(err):
		return "parse"
	default:
		return "detail"
	}
}

func asPersistence(entity, key string, err error) error {
	if crawler.IsPersistenceError(err) {
		return err
	}
	return &crawler.PersistenceError{Entity: entity, Key: key, Err: err}
}
