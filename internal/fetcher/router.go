// Package fetcher is the single point of contact with the remote site. It
// paces every request through the shared host limiter and routes it to the
// static or rendered backend by kind.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
)

// Waiter blocks until a request to rawURL may be issued.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// SelfPaced is implemented by backends that await the limiter themselves once
// they hold the resources a request needs, such as a browser session.
type SelfPaced interface {
	PacesRequests() bool
}

// Router implements crawler.Fetcher over a listing and a detail backend.
type Router struct {
	limiter Waiter
	listing crawler.Fetcher
	detail  crawler.Fetcher
	logger  *zap.Logger
}

// NewRouter wires a Router. detail may be nil when rendering is unavailable.
func NewRouter(limiter Waiter, listing, detail crawler.Fetcher, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{limiter: limiter, listing: listing, detail: detail, logger: logger.Named("fetcher")}
}

// Fetch waits on the host limiter, unless the backend paces itself, and
// dispatches req. Every failure is a *crawler.FetchError carrying the URL and
// cause. A backend *crawler.ParseError comes back with the page it read.
func (r *Router) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.RawPage, error) {
	backend, err := r.backend(req.Kind)
	if err != nil {
		return crawler.RawPage{}, r.fail(req, err)
	}
	if r.limiter != nil && !pacesItself(backend) {
		if err := r.limiter.Wait(ctx, req.URL); err != nil {
			return crawler.RawPage{}, r.fail(req, err)
		}
	}

	start := time.Now()
	page, err := backend.Fetch(ctx, req)
	var partial *crawler.ParseError
	if err != nil && !errors.As(err, &partial) {
		return crawler.RawPage{}, r.fail(req, err)
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return crawler.RawPage{}, r.fail(req, &crawler.FetchError{
			URL: req.URL, Kind: req.Kind, StatusCode: page.StatusCode, Err: errors.New("unexpected status"),
		})
	}
	if page.Duration == 0 {
		page.Duration = time.Since(start)
	}
	metrics.ObserveFetch(string(req.Kind), req.URL, len(page.Body), page.Duration)
	r.logger.Debug("fetched",
		zap.String("kind", string(req.Kind)),
		zap.String("url", req.URL),
		zap.Int("status", page.StatusCode),
		zap.Duration("duration", page.Duration),
	)
	if partial != nil {
		return page, partial
	}
	return page, nil
}

func pacesItself(backend crawler.Fetcher) bool {
	sp, ok := backend.(SelfPaced)
	return ok && sp.PacesRequests()
}

func (r *Router) backend(kind crawler.FetchKind) (crawler.Fetcher, error) {
	switch kind {
	case crawler.FetchListing:
		if r.listing != nil {
			return r.listing, nil
		}
	case crawler.FetchDetail:
		if r.detail != nil {
			return r.detail, nil
		}
	default:
		return nil, fmt.Errorf("unknown fetch kind %q", kind)
	}
	return nil, fmt.Errorf("no %s fetcher configured", kind)
}

func (r *Router) fail(req crawler.FetchRequest, err error) error {
	metrics.ObserveFetchError(string(req.Kind), req.URL)
	var fetchErr *crawler.FetchError
	if errors.As(err, &fetchErr) {
		return err
	}
	return &crawler.FetchError{URL: req.URL, Kind: req.Kind, Err: err}
}
