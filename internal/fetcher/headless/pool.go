// Package headless renders detail pages in headless Chrome through a bounded
// pool of browser sessions.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("headless pool closed")

// PoolConfig controls the browser allocator and session count.
type PoolConfig struct {
	MaxSessions int
	UserAgent   string
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string
}

// Pool owns one browser process and hands out tab-scoped sessions.
type Pool struct {
	sem           chan struct{}
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
	inUse         atomic.Int32
	closed        atomic.Bool

	startMu sync.Mutex
	started bool
	// start launches the browser behind the browser context.
	start func(context.Context) error
}

// NewPool creates a Pool. Chrome is launched by the first Acquire.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.MaxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be > 0")
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Pool{
		sem:           make(chan struct{}, cfg.MaxSessions),
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
		start:         startBrowser,
	}, nil
}

func startBrowser(browser context.Context) error {
	if err := chromedp.Run(browser); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	return nil
}

// ensureBrowser launches the shared browser once. Tabs created before the
// browser runs would each allocate their own process.
func (p *Pool) ensureBrowser() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started {
		return nil
	}
	if err := p.start(p.browser); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Acquire blocks until a session slot is free or ctx is done. The caller must
// Release the session; canceling ctx also cancels the session's tab.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("headless session wait canceled: %w", err)
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("headless session wait canceled: %w", ctx.Err())
	}
	if p.closed.Load() {
		<-p.sem
		return nil, ErrPoolClosed
	}
	if err := p.ensureBrowser(); err != nil {
		<-p.sem
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(p.browser)
	stop := context.AfterFunc(ctx, tabCancel)
	metrics.SetHeadlessSessions(int(p.inUse.Add(1)))

	s := &Session{ctx: tabCtx}
	s.release = func() {
		stop()
		tabCancel()
		metrics.SetHeadlessSessions(int(p.inUse.Add(-1)))
		<-p.sem
	}
	return s, nil
}

// InUse reports the number of checked-out sessions.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Close rejects new sessions and shuts the browser down.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.browserCancel()
	p.allocCancel()
}

// Session is one browser tab checked out of a Pool.
type Session struct {
	ctx     context.Context
	release func()
	once    sync.Once
}

// Context returns the tab context for chromedp actions.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Release closes the tab and returns the slot. It is safe to call more than once.
func (s *Session) Release() {
	s.once.Do(s.release)
}
