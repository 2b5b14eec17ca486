package fetcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/hash/sha256"
)

// Archiver decorates a Fetcher and stores every successful raw page so that
// failed extractions can be replayed by hand.
type Archiver struct {
	next   crawler.Fetcher
	blobs  crawler.BlobStore
	hasher crawler.Hasher
	clock  crawler.Clock
	prefix string
	logger *zap.Logger
}

// NewArchiver wraps next. Archive failures are logged and never fail the fetch.
func NewArchiver(next crawler.Fetcher, blobs crawler.BlobStore, hasher crawler.Hasher, clock crawler.Clock, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		next:   next,
		blobs:  blobs,
		hasher: hasher,
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("archive"),
	}
}

// Fetch delegates to the wrapped Fetcher and archives the page body. Pages
// returned with a *crawler.ParseError are archived too and keep their error.
func (a *Archiver) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.RawPage, error) {
	page, err := a.next.Fetch(ctx, req)
	if err != nil && !crawler.IsParseError(err) {
		return page, err
	}
	uri, archiveErr := a.archive(ctx, page)
	if archiveErr != nil {
		a.logger.Warn("archive raw page failed", zap.String("url", page.URL), zap.Error(archiveErr))
		return page, err
	}
	a.logger.Debug("archived raw page", zap.String("url", page.URL), zap.String("uri", uri))
	return page, err
}

func (a *Archiver) archive(ctx context.Context, page crawler.RawPage) (string, error) {
	body := page.Body
	if page.FrameText != "" {
		body = append(append(append([]byte(nil), body...), "\n<!-- content-frame -->\n"...), page.FrameText...)
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	day := a.clock.Now().UTC().Format("2006-01-02")
	path := fmt.Sprintf("%s/%s/%s.html", page.Kind, day, sha256.Shard(digest))
	if a.prefix != "" {
		path = a.prefix + "/" + path
	}
	uri, err := a.blobs.PutObject(ctx, path, "text/html; charset=utf-8", body)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}
