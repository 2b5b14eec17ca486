// Package dispatcher runs harvests in the background on behalf of the control
// API, one at a time, and records their lifecycle in a RunStore.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

var (
	// ErrRunInProgress is returned by Start while another run is active.
	ErrRunInProgress = errors.New("a harvest run is already in progress")
	// ErrRunNotActive is returned by Cancel for a run that already finished.
	ErrRunNotActive = errors.New("run is not active")
)

const finishTimeout = 10 * time.Second

// Runner executes a single harvest.
type Runner interface {
	Run(ctx context.Context, params crawler.RunParams) (crawler.RunResult, error)
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
}

// Dispatcher owns background runs.
type Dispatcher struct {
	runner Runner
	runs   crawler.RunStore
	ids    crawler.IDGenerator
	clock  crawler.Clock
	logger *zap.Logger

	base       context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	active *activeRun
}

// New creates a Dispatcher.
func New(runner Runner, runs crawler.RunStore, ids crawler.IDGenerator, clock crawler.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		runner:     runner,
		runs:       runs,
		ids:        ids,
		clock:      clock,
		logger:     logger.Named("dispatcher"),
		base:       base,
		baseCancel: cancel,
	}
}

// Start records a new run and executes it in the background.
func (d *Dispatcher) Start(ctx context.Context, params crawler.RunParams) (crawler.Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return crawler.Run{}, ErrRunInProgress
	}
	if d.base.Err() != nil {
		return crawler.Run{}, fmt.Errorf("dispatcher stopped: %w", d.base.Err())
	}

	id, err := d.ids.NewID()
	if err != nil {
		return crawler.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	params.RunID = id
	run := crawler.Run{
		ID:        id,
		Status:    crawler.RunStatusRunning,
		Params:    params,
		Submitted: d.clock.Now().UTC(),
	}
	if err := d.runs.CreateRun(ctx, run); err != nil {
		return crawler.Run{}, fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(d.base)
	d.active = &activeRun{id: id, cancel: cancel}
	d.wg.Add(1)
	go d.execute(runCtx, cancel, params)

	d.logger.Info("run dispatched", zap.String("run_id", id), zap.String("keyword", params.Query.Keyword))
	return run, nil
}

func (d *Dispatcher) execute(ctx context.Context, cancel context.CancelFunc, params crawler.RunParams) {
	defer d.wg.Done()
	defer cancel()

	result, err := d.runner.Run(ctx, params)

	status := crawler.RunStatusSucceeded
	errText := ""
	var recorded *crawler.RunResult
	switch {
	case err != nil:
		status = crawler.RunStatusFailed
		errText = err.Error()
	case result.StopReason == crawler.StopCanceled:
		status = crawler.RunStatusCanceled
		recorded = &result
	default:
		recorded = &result
	}

	finishCtx, finishCancel := context.WithTimeout(context.Background(), finishTimeout)
	defer finishCancel()
	if ferr := d.runs.FinishRun(finishCtx, params.RunID, status, recorded, errText); ferr != nil {
		d.logger.Error("record run completion failed", zap.String("run_id", params.RunID), zap.Error(ferr))
	}

	d.mu.Lock()
	if d.active != nil && d.active.id == params.RunID {
		d.active = nil
	}
	d.mu.Unlock()

	fields := []zap.Field{zap.String("run_id", params.RunID), zap.String("status", string(status))}
	if err != nil {
		d.logger.Error("run failed", append(fields, zap.Error(err))...)
		return
	}
	d.logger.Info("run completed", append(fields, zap.Int("collected", result.Collected))...)
}

// Cancel stops the active run with the given ID.
func (d *Dispatcher) Cancel(ctx context.Context, runID string) error {
	d.mu.Lock()
	if d.active != nil && d.active.id == runID {
		d.active.cancel()
		d.mu.Unlock()
		d.logger.Info("run cancel requested", zap.String("run_id", runID))
		return nil
	}
	d.mu.Unlock()

	if _, err := d.runs.GetRun(ctx, runID); err != nil {
		return err
	}
	return ErrRunNotActive
}

// Get returns the stored record for runID.
func (d *Dispatcher) Get(ctx context.Context, runID string) (crawler.Run, error) {
	run, err := d.runs.GetRun(ctx, runID)
	if err != nil {
		return crawler.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Active returns the ID of the running harvest, if any.
func (d *Dispatcher) Active() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return "", false
	}
	return d.active.id, true
}

// Run blocks until ctx finishes, then cancels any active run and waits for it.
func (d *Dispatcher) Run(ctx context.Context) {
	<-ctx.Done()
	d.Shutdown()
}

// Shutdown cancels the active run and waits for its record to be written.
func (d *Dispatcher) Shutdown() {
	d.baseCancel()
	d.wg.Wait()
}
