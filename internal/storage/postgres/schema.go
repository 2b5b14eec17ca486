// Package postgres implements the posting and run stores on Postgres via pgx.
package postgres

import (
	"context"
	"fmt"
)

// Schema creates the tables used by PostingStore and RunStore.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
	name        TEXT PRIMARY KEY,
	location    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_postings (
	id                  BIGSERIAL PRIMARY KEY,
	company_name        TEXT NOT NULL REFERENCES companies (name),
	title               TEXT NOT NULL,
	original_url        TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	tasks               TEXT[] NOT NULL DEFAULT '{}',
	requirements        TEXT[] NOT NULL DEFAULT '{}',
	preferred           TEXT[] NOT NULL DEFAULT '{}',
	benefits            TEXT[] NOT NULL DEFAULT '{}',
	process             TEXT[] NOT NULL DEFAULT '{}',
	location            TEXT NOT NULL DEFAULT '',
	employment_type     TEXT NOT NULL DEFAULT '',
	employment_category TEXT NOT NULL DEFAULT '',
	experience_level    TEXT NOT NULL DEFAULT '',
	education           TEXT NOT NULL DEFAULT '',
	conditions          JSONB NOT NULL DEFAULT '{}',
	salary_text         TEXT NOT NULL DEFAULT '',
	sector              TEXT NOT NULL DEFAULT '',
	skills              TEXT[] NOT NULL DEFAULT '{}',
	deadline            TEXT NOT NULL DEFAULT '',
	deadline_at         TIMESTAMPTZ,
	status              TEXT NOT NULL,
	run_id              TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	UNIQUE (company_name, title)
);

CREATE TABLE IF NOT EXISTS harvest_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	params       JSONB NOT NULL,
	result       JSONB,
	error_text   TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ
);
`

// EnsureSchema applies Schema. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
