package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// RunStore persists harvest run records in the harvest_runs table.
type RunStore struct {
	pool pool
	now  func() time.Time
}

// NewRunStoreWithPool builds a RunStore over an existing pool.
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: p, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run crawler.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	const query = `
		INSERT INTO harvest_runs (id, status, params, submitted_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, run.ID, string(run.Status), params, run.Submitted); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status and result of a run.
func (s *RunStore) FinishRun(ctx context.Context, runID string, status crawler.RunStatus, result *crawler.RunResult, errText string) error {
	var resultJSON []byte
	if result != nil {
		var err error
		if resultJSON, err = json.Marshal(result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}
	const query = `
		UPDATE harvest_runs
		SET status = $2, result = $3, error_text = $4, finished_at = $5
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, runID, string(status), resultJSON, errText, s.now())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// GetRun loads a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (crawler.Run, error) {
	const query = `
		SELECT id, status, params, result, error_text, submitted_at, finished_at
		FROM harvest_runs WHERE id = $1`
	var (
		run        crawler.Run
		status     string
		params     []byte
		resultJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(&run.ID, &status, &params, &resultJSON, &run.ErrorText, &run.Submitted, &run.Finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Run{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Run{}, fmt.Errorf("select run: %w", err)
	}
	run.Status = crawler.RunStatus(status)
	if err := json.Unmarshal(params, &run.Params); err != nil {
		return crawler.Run{}, fmt.Errorf("decode params: %w", err)
	}
	if len(resultJSON) > 0 {
		var result crawler.RunResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return crawler.Run{}, fmt.Errorf("decode result: %w", err)
		}
		run.Result = &result
	}
	return run, nil
}
