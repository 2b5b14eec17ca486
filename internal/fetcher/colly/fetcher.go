// Package collyfetcher implements the static listing fetch using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are sent with every request, e.g. Accept-Language and Referer.
	Headers http.Header
}

// Fetcher implements crawler.Fetcher for plain GET requests.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchState struct {
	page   crawler.RawPage
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch issues a GET for req.URL with req.Query appended. Failures, including
// non-2xx statuses, are returned as *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.RawPage, error) {
	target, err := withQuery(req.URL, req.Query)
	if err != nil {
		return crawler.RawPage{}, &crawler.FetchError{URL: req.URL, Kind: req.Kind, Err: err}
	}

	state := &fetchState{}
	start := time.Now()
	collector := f.buildCollector(ctx, req, start, state)

	if err := f.runCollector(ctx, collector, target, state); err != nil {
		return crawler.RawPage{}, &crawler.FetchError{URL: target, Kind: req.Kind, StatusCode: state.status, Err: err}
	}
	return state.page, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, req crawler.FetchRequest, start time.Time, state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	f.configureCollectorHooks(collector, req, start, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, req crawler.FetchRequest, start time.Time, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(f.cfg.Headers, r)
		copyHeaders(req.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		state.page = crawler.RawPage{
			URL:        req.URL,
			FinalURL:   r.Request.URL.String(),
			Kind:       req.Kind,
			StatusCode: r.StatusCode,
			Headers:    cloneHeader(r.Headers),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if state.err != nil {
			return fmt.Errorf("colly response failed: %w", state.err)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if state.status < 200 || state.status > 299 {
			return errors.New("unexpected status")
		}
		return nil
	}
}

func withQuery(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(query) == 0 {
		return u.String(), nil
	}
	merged := u.Query()
	for key, values := range query {
		merged[key] = append([]string(nil), values...)
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}

func copyHeaders(src http.Header, r *colly.Request) {
	for key, values := range src {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func cloneHeader(h *http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
