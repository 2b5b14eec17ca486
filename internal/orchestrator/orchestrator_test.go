package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/worker"
)

const searchURL = "https://www.saramin.co.kr/zf_user/search/recruit"

type pageFetcher struct {
	mu      sync.Mutex
	failing map[int]bool
	pages   []int
	onFetch func(page int)
}

func (f *pageFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.RawPage, error) {
	page, _ := strconv.Atoi(req.Query.Get("recruitPage"))
	f.mu.Lock()
	f.pages = append(f.pages, page)
	fail := f.failing[page]
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch(page)
	}
	if fail {
		return crawler.RawPage{}, &crawler.FetchError{URL: req.URL, Kind: req.Kind, StatusCode: 503, Err: errors.New("unexpected status")}
	}
	return crawler.RawPage{URL: req.URL, Kind: req.Kind, StatusCode: 200, Body: []byte(strconv.Itoa(page))}, nil
}

func (f *pageFetcher) visited() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.pages...)
}

// stubParser returns perPage stubs for every page up to lastPage and none after.
type stubParser struct {
	perPage  int
	lastPage int
}

func (p stubParser) Parse(page crawler.RawPage) ([]crawler.PostingStub, error) {
	n, err := strconv.Atoi(string(page.Body))
	if err != nil {
		return nil, err
	}
	stubs := make([]crawler.PostingStub, 0)
	if n > p.lastPage {
		return stubs, nil
	}
	for i := 0; i < p.perPage; i++ {
		stubs = append(stubs, crawler.PostingStub{
			CompanyName: fmt.Sprintf("company-%d", i),
			Title:       fmt.Sprintf("title-%d-%d", n, i),
			URL:         fmt.Sprintf("https://www.saramin.co.kr/view?rec_idx=%d%02d", n, i),
		})
	}
	return stubs, nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	fail      map[string]bool
	degraded  bool
	delay     time.Duration
	active    atomic.Int32
	peak      atomic.Int32
}

func (p *fakeProcessor) Process(ctx context.Context, _ string, stub crawler.PostingStub) (worker.Outcome, error) {
	cur := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		old := p.peak.Load()
		if cur <= old || p.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return worker.Outcome{}, ctx.Err()
		}
	}
	if p.fail[stub.Title] {
		return worker.Outcome{}, &crawler.PersistenceError{Entity: "posting", Key: stub.Title, Err: errors.New("db down")}
	}
	p.mu.Lock()
	p.processed = append(p.processed, stub.Title)
	p.mu.Unlock()
	return worker.Outcome{Posting: crawler.NormalizedPosting{Title: stub.Title}, Inserted: true, DetailUnavailable: p.degraded}, nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

type noPause struct{ calls atomic.Int32 }

func (n *noPause) Pause(context.Context, time.Duration) { n.calls.Add(1) }

type fixedID struct{}

func (fixedID) NewID() (string, error) { return "generated-id", nil }

func newOrchestrator(t *testing.T, f crawler.Fetcher, p ListingParser, proc Processor, workers int) (*Orchestrator, *noPause) {
	t.Helper()
	o, err := New(f, p, proc, fixedID{}, nil, Config{SearchURL: searchURL, Workers: workers}, zap.NewNop())
	require.NoError(t, err)
	pause := &noPause{}
	o.pauser = pause
	return o, pause
}

func TestRunStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{}
	proc := &fakeProcessor{}
	o, pause := newOrchestrator(t, fetcher, stubParser{perPage: 3, lastPage: 2}, proc, 2)

	res, err := o.Run(context.Background(), crawler.RunParams{RunID: "run-1", MaxPages: 10})
	require.NoError(t, err)
	require.Equal(t, crawler.StopExhausted, res.StopReason)
	require.Equal(t, 6, res.Collected)
	require.Equal(t, 3, res.PagesVisited)
	require.Equal(t, []int{1, 2, 3}, fetcher.visited())
	require.Equal(t, int32(2), pause.calls.Load())
}

func TestRunNeverExceedsCap(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{}
	proc := &fakeProcessor{delay: 5 * time.Millisecond}
	o, _ := newOrchestrator(t, fetcher, stubParser{perPage: 4, lastPage: 10}, proc, 4)

	res, err := o.Run(context.Background(), crawler.RunParams{RunID: "run-1", MaxPages: 10, MaxPostings: 6})
	require.NoError(t, err)
	require.Equal(t, crawler.StopCapReached, res.StopReason)
	require.Equal(t, 6, res.Collected)
	require.Equal(t, 6, proc.count())
	require.Equal(t, []int{1, 2}, fetcher.visited())
	require.LessOrEqual(t, proc.peak.Load(), int32(4))
}

func TestRunRefillsCapAfterFailures(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{}
	proc := &fakeProcessor{fail: map[string]bool{"title-1-0": true, "title-1-1": true}}
	o, _ := newOrchestrator(t, fetcher, stubParser{perPage: 5, lastPage: 1}, proc, 3)

	res, err := o.Run(context.Background(), crawler.RunParams{RunID: "run-1", MaxPages: 1, MaxPostings: 3})
	require.NoError(t, err)
	require.Equal(t, crawler.StopCapReached, res.StopReason)
	require.Equal(t, 3, res.Collected)
	require.Equal(t, 2, res.PostingsFailed)
}

func TestRunSkipsFailedListingPage(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{failing: map[int]bool{2: true}}
	proc := &fakeProcessor{degraded: true}
	o, _ := newOrchestrator(t, fetcher, stubParser{perPage: 2, lastPage: 3}, proc, 1)

	res, err := o.Run(context.Background(), crawler.RunParams{RunID: "run-1", MaxPages: 3})
	require.NoError(t, err)
	require.Equal(t, crawler.StopMaxPages, res.StopReason)
	require.Equal(t, []int{1, 2, 3}, fetcher.visited())
	require.Equal(t, 1, res.PagesFailed)
	require.Equal(t, 2, res.PagesVisited)
	require.Equal(t, 4, res.Collected)
	require.Equal(t, 4, res.DetailUnavailable)
}

func TestRunCancellationIsNormalTermination(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &pageFetcher{onFetch: func(page int) {
		if page == 2 {
			cancel()
		}
	}}
	proc := &fakeProcessor{}
	o, _ := newOrchestrator(t, fetcher, stubParser{perPage: 2, lastPage: 10}, proc, 2)

	res, err := o.Run(ctx, crawler.RunParams{RunID: "run-1", MaxPages: 10})
	require.NoError(t, err)
	require.Equal(t, crawler.StopCanceled, res.StopReason)
	require.Equal(t, 2, res.Collected)
	require.Equal(t, []int{1, 2}, fetcher.visited())
}

func TestRunBudgetCancelsRun(t *testing.T) {
	t.Parallel()

	fetcher := &pageFetcher{}
	proc := &fakeProcessor{delay: time.Second}
	o, err := New(fetcher, stubParser{perPage: 2, lastPage: 10}, proc, fixedID{}, nil,
		Config{SearchURL: searchURL, Workers: 2, RunBudget: 50 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	o.pauser = &noPause{}

	res, err := o.Run(context.Background(), crawler.RunParams{MaxPages: 10})
	require.NoError(t, err)
	require.Equal(t, "generated-id", res.RunID)
	require.Equal(t, crawler.StopCanceled, res.StopReason)
	require.Zero(t, res.Collected)
	require.Zero(t, res.PostingsFailed)
}

func TestRunRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator(t, &pageFetcher{}, stubParser{}, &fakeProcessor{}, 1)
	_, err := o.Run(context.Background(), crawler.RunParams{RunID: "x", MaxPages: 0})
	require.Error(t, err)
	_, err = o.Run(context.Background(), crawler.RunParams{RunID: "x", MaxPages: 1, MaxPostings: -1})
	require.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(&pageFetcher{}, stubParser{}, &fakeProcessor{}, nil, nil, Config{}, nil)
	require.Error(t, err)
	_, err = New(&pageFetcher{}, stubParser{}, &fakeProcessor{}, nil, nil,
		Config{SearchURL: searchURL, PageDelayMin: time.Second, PageDelayMax: time.Millisecond}, nil)
	require.Error(t, err)
}

func TestBudget(t *testing.T) {
	t.Parallel()

	b := newBudget(2)
	require.True(t, b.reserve())
	require.True(t, b.reserve())
	require.False(t, b.reserve())
	b.release()
	require.True(t, b.reserve())
	b.commit()
	b.commit()
	require.True(t, b.full())
	require.Equal(t, 2, b.count())

	unlimited := newBudget(0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.reserve())
	}
	require.False(t, unlimited.full())
}
