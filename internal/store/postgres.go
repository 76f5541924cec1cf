// Package store is the durable persistence layer shared by every process.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the Postgres pool behind the pipeline's persistence surface.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and bootstraps the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &Store{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks connectivity; backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_results (
			id BIGSERIAL PRIMARY KEY,
			repo_name TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			auth_integrity_score INTEGER NOT NULL,
			drift_delta INTEGER NOT NULL DEFAULT 0,
			severity TEXT NOT NULL,
			vulnerabilities JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_results_timestamp ON scan_results(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_results_severity ON scan_results(severity)`,
		`CREATE TABLE IF NOT EXISTS redteam_findings (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			severity TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL DEFAULT 'open',
			category TEXT,
			endpoint TEXT,
			method TEXT,
			evidence TEXT,
			recommendation TEXT,
			scan_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS jira_integration_config (
			id SERIAL PRIMARY KEY,
			base_url TEXT,
			project_key TEXT,
			api_token TEXT,
			user_email TEXT,
			issue_type TEXT DEFAULT 'Bug',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS jira_issues (
			id BIGSERIAL PRIMARY KEY,
			scan_result_id BIGINT,
			finding_index INTEGER,
			repo_name TEXT,
			vulnerability_type TEXT,
			endpoint_or_file TEXT,
			jira_issue_key TEXT,
			jira_status TEXT NOT NULL DEFAULT 'Open',
			severity TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jira_issues_lookup
			ON jira_issues (repo_name, endpoint_or_file, vulnerability_type, jira_status)`,
		`CREATE INDEX IF NOT EXISTS idx_jira_issues_scan
			ON jira_issues (scan_result_id, finding_index)`,
		`CREATE TABLE IF NOT EXISTS jira_processed_scans (
			id BIGSERIAL PRIMARY KEY,
			scan_result_id BIGINT UNIQUE,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
