package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// RunStore provides an in-memory RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]crawler.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]crawler.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run crawler.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun records the terminal state of a run.
func (s *RunStore) FinishRun(_ context.Context, runID string, status crawler.RunStatus, result *crawler.RunResult, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.ErrNotFound
	}
	run.Status = status
	run.ErrorText = errText
	if result != nil {
		copied := *result
		run.Result = &copied
	}
	now := time.Now().UTC()
	run.Finished = &now
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (crawler.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.Run{}, crawler.ErrNotFound
	}
	return run, nil
}
