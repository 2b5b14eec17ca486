package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 2 * time.Second
	defaultReadyTimeout      = 10 * time.Second
)

// ErrFrameNotFound reports a detail page without the content frame.
var ErrFrameNotFound = errors.New("content frame not found")

// Waiter blocks until a request to rawURL may be issued.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls detail rendering.
type Config struct {
	NavigationTimeout time.Duration
	// SettleDelay lets dynamic text settle after the panels are ready.
	SettleDelay time.Duration
	// ReadyTimeout bounds the wait for each panel. A panel that never shows
	// up is left for the reader to report.
	ReadyTimeout    time.Duration
	SummarySelector string
	FrameSelector   string
	ContentSelector string
	Headers         http.Header
}

// Fetcher renders detail pages with sessions from a Pool.
type Fetcher struct {
	pool    *Pool
	limiter Waiter
	cfg     Config
}

// NewFetcher returns a detail Fetcher backed by pool. When limiter is set the
// request is paced after a session is held, right before navigation.
func NewFetcher(pool *Pool, limiter Waiter, cfg Config) *Fetcher {
	if cfg.SummarySelector == "" {
		cfg.SummarySelector = ".jv_summary"
	}
	if cfg.FrameSelector == "" {
		cfg.FrameSelector = "iframe#iframe_content_0"
	}
	if cfg.ContentSelector == "" {
		cfg.ContentSelector = ".user_content"
	}
	return &Fetcher{pool: pool, limiter: limiter, cfg: cfg}
}

// PacesRequests reports whether Fetch awaits the limiter itself.
func (f *Fetcher) PacesRequests() bool {
	return f.limiter != nil
}

// Fetch renders req.URL and returns the document HTML plus the text of the
// framed content panel. The session is released on every return path. A page
// without the content frame is returned with empty FrameText and a
// *crawler.ParseError so the summary panel can still be read.
func (f *Fetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.RawPage, error) {
	fail := func(status int, err error) (crawler.RawPage, error) {
		return crawler.RawPage{}, &crawler.FetchError{URL: req.URL, Kind: crawler.FetchDetail, StatusCode: status, Err: err}
	}

	session, err := f.acquire(ctx, req.URL)
	if err != nil {
		return fail(0, err)
	}
	defer session.Release()

	taskCtx, cancel := context.WithTimeout(session.Context(), f.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	rendered, err := f.render(taskCtx, req)
	status, headers, finalURL := meta.snapshotWithFallbacks(req.URL, rendered.finalURL)
	var partial error
	switch {
	case errors.Is(err, ErrFrameNotFound):
		partial = &crawler.ParseError{URL: req.URL, Stage: "frame", Err: err}
	case err != nil:
		return fail(status, err)
	}
	if status == 0 {
		status = http.StatusOK
	}
	if status < 200 || status > 299 {
		return fail(status, errors.New("unexpected status"))
	}

	page := crawler.RawPage{
		URL:        req.URL,
		FinalURL:   finalURL,
		Kind:       crawler.FetchDetail,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(rendered.html),
		FrameText:  rendered.frameText,
		Duration:   time.Since(start),
		Rendered:   true,
	}
	return page, partial
}

// acquire holds a session and then a limiter slot, so the pacing gap is
// measured between navigations rather than between queue entries.
func (f *Fetcher) acquire(ctx context.Context, rawURL string) (*Session, error) {
	session, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			session.Release()
			return nil, err
		}
	}
	return session, nil
}

type renderResult struct {
	html      string
	finalURL  string
	frameText string
}

func (f *Fetcher) render(ctx context.Context, req crawler.FetchRequest) (renderResult, error) {
	var (
		out    renderResult
		frames []*cdp.Node
	)
	actions := []chromedp.Action{
		f.networkSetupAction(req.Headers),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		f.waitPanel(f.cfg.SummarySelector),
		f.waitPanel(f.cfg.FrameSelector),
		chromedp.Location(&out.finalURL),
		chromedp.Nodes(f.cfg.FrameSelector, &frames, chromedp.ByQuery, chromedp.AtLeast(0)),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return out, fmt.Errorf("chromedp run: %w", err)
	}
	if len(frames) == 0 {
		if err := chromedp.Run(ctx, f.capture(&out)); err != nil {
			return out, fmt.Errorf("chromedp run: %w", err)
		}
		return out, ErrFrameNotFound
	}
	if err := chromedp.Run(ctx,
		f.waitPanel(f.cfg.ContentSelector, chromedp.FromNode(frames[0])),
		f.capture(&out),
		chromedp.Text(f.cfg.ContentSelector, &out.frameText, chromedp.ByQuery, chromedp.FromNode(frames[0])),
	); err != nil {
		return out, fmt.Errorf("read content frame: %w", err)
	}
	return out, nil
}

// capture lets dynamic text settle and then reads the document HTML.
func (f *Fetcher) capture(out *renderResult) chromedp.Action {
	return chromedp.Tasks{
		chromedp.Sleep(f.settleDelay()),
		chromedp.OuterHTML("html", &out.html, chromedp.ByQuery),
	}
}

// waitPanel waits up to the ready timeout for sel. Giving up is not an error
// unless the render itself was canceled.
func (f *Fetcher) waitPanel(sel string, opts ...chromedp.QueryOption) chromedp.Action {
	query := append([]chromedp.QueryOption{chromedp.ByQuery}, opts...)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, f.readyTimeout())
		defer cancel()
		if err := chromedp.WaitReady(sel, query...).Do(waitCtx); err != nil && ctx.Err() != nil {
			return fmt.Errorf("wait for %s: %w", sel, ctx.Err())
		}
		return nil
	})
}

func (f *Fetcher) networkSetupAction(extra http.Header) chromedp.Action {
	headers := cloneHeader(f.cfg.Headers)
	if headers == nil {
		headers = http.Header{}
	}
	for key, values := range extra {
		headers[key] = append([]string(nil), values...)
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (f *Fetcher) readyTimeout() time.Duration {
	if f.cfg.ReadyTimeout > 0 {
		return f.cfg.ReadyTimeout
	}
	return defaultReadyTimeout
}

func (f *Fetcher) settleDelay() time.Duration {
	if f.cfg.SettleDelay > 0 {
		return f.cfg.SettleDelay
	}
	return defaultSettleDelay
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

// capture keeps the first document response, which is the top-level page.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, cloneHeader(m.headers), m.url
	m.mu.RUnlock()

	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	return src.Clone()
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[len(values)-1]
	}
	return headers
}
