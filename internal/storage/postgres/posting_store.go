package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// pool is the subset of *pgxpool.Pool used here, so pgxmock can stand in.
type pool interface {
	execer
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Connect opens a pgx pool from cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// PostingStore upserts companies by name and postings by (company, title).
type PostingStore struct {
	pool pool
}

// NewPostingStoreWithPool builds a PostingStore over an existing pool.
func NewPostingStoreWithPool(p pool) (*PostingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostingStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *PostingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertCompanySQL = `
INSERT INTO companies (name, location, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
SET location = EXCLUDED.location,
	updated_at = EXCLUDED.updated_at`

// UpsertCompany inserts or refreshes a company row.
func (s *PostingStore) UpsertCompany(ctx context.Context, company crawler.Company) error {
	if company.Name == "" {
		return &crawler.PersistenceError{Entity: "company", Err: fmt.Errorf("name is required")}
	}
	if _, err := s.pool.Exec(ctx, upsertCompanySQL, company.Name, company.Location); err != nil {
		return &crawler.PersistenceError{Entity: "company", Key: company.Name, Err: err}
	}
	return nil
}

const upsertPostingSQL = `
INSERT INTO job_postings (
	company_name, title, original_url, description,
	tasks, requirements, preferred, benefits, process,
	location, employment_type, employment_category, experience_level, education,
	conditions, salary_text, sector, skills, deadline, deadline_at,
	status, run_id, created_at, updated_at
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8, $9,
	$10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20,
	$21, $22, $23, $23
)
ON CONFLICT (company_name, title) DO UPDATE SET
	original_url = EXCLUDED.original_url,
	description = EXCLUDED.description,
	tasks = EXCLUDED.tasks,
	requirements = EXCLUDED.requirements,
	preferred = EXCLUDED.preferred,
	benefits = EXCLUDED.benefits,
	process = EXCLUDED.process,
	location = EXCLUDED.location,
	employment_type = EXCLUDED.employment_type,
	employment_category = EXCLUDED.employment_category,
	experience_level = EXCLUDED.experience_level,
	education = EXCLUDED.education,
	conditions = EXCLUDED.conditions,
	salary_text = EXCLUDED.salary_text,
	sector = EXCLUDED.sector,
	skills = EXCLUDED.skills,
	deadline = EXCLUDED.deadline,
	deadline_at = EXCLUDED.deadline_at,
	status = EXCLUDED.status,
	run_id = EXCLUDED.run_id,
	updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`

// UpsertPosting writes p and reports whether a new row was created.
func (s *PostingStore) UpsertPosting(ctx context.Context, p crawler.NormalizedPosting) (bool, error) {
	key := p.CompanyName + "/" + p.Title
	if p.CompanyName == "" || p.Title == "" {
		return false, &crawler.PersistenceError{Entity: "posting", Key: key, Err: fmt.Errorf("company name and title are required")}
	}
	conditions, err := json.Marshal(p.Conditions)
	if err != nil {
		return false, &crawler.PersistenceError{Entity: "posting", Key: key, Err: fmt.Errorf("marshal conditions: %w", err)}
	}

	var inserted bool
	err = s.pool.QueryRow(ctx, upsertPostingSQL, postingArgs(p, conditions)...).Scan(&inserted)
	if err != nil {
		return false, &crawler.PersistenceError{Entity: "posting", Key: key, Err: err}
	}
	return inserted, nil
}

func postingArgs(p crawler.NormalizedPosting, conditions []byte) []any {
	return []any{
		p.CompanyName, p.Title, p.URL, p.Description,
		nonNil(p.Tasks), nonNil(p.Requirements), nonNil(p.Preferred), nonNil(p.Benefits), nonNil(p.Process),
		p.Location, p.EmploymentType, p.EmploymentCategory, p.Experience, p.Education,
		conditions, p.Salary, p.Sector, nonNil(p.Skills), p.Deadline, p.DeadlineAt,
		string(p.Status), p.RunID, p.HarvestedAt,
	}
}

const countsSQL = `SELECT (SELECT count(*) FROM companies), (SELECT count(*) FROM job_postings)`

// Counts returns the number of stored companies and postings.
func (s *PostingStore) Counts(ctx context.Context) (crawler.StoreCounts, error) {
	var counts crawler.StoreCounts
	if err := s.pool.QueryRow(ctx, countsSQL).Scan(&counts.Companies, &counts.Postings); err != nil {
		return crawler.StoreCounts{}, fmt.Errorf("count rows: %w", err)
	}
	return counts, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
