package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sentinelai/sentinel/internal/domain"
)

// SaveScanResult persists one scan in a single statement and fills in the
// assigned id and timestamp. ScanResults are immutable afterwards.
func (s *Store) SaveScanResult(ctx context.Context, result *domain.ScanResult) error {
	vulns, err := json.Marshal(result.Vulnerabilities)
	if err != nil {
		return fmt.Errorf("encode vulnerabilities: %w", err)
	}
	if result.Vulnerabilities == nil {
		vulns = []byte("[]")
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO scan_results
			(repo_name, commit_hash, auth_integrity_score, drift_delta, severity, vulnerabilities)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, timestamp`,
		result.RepoName, result.CommitHash, result.Score, result.DriftDelta,
		string(result.Severity), vulns,
	)
	if err := row.Scan(&result.ID, &result.Timestamp); err != nil {
		return fmt.Errorf("insert scan result: %w", err)
	}
	return nil
}

// LatestScore returns the most recent integrity score; ok is false when no
// scans exist.
func (s *Store) LatestScore(ctx context.Context) (int, bool, error) {
	var score int
	err := s.pool.QueryRow(ctx,
		`SELECT auth_integrity_score FROM scan_results ORDER BY timestamp DESC LIMIT 1`,
	).Scan(&score)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return score, true, nil
}

// CountScans returns the total number of persisted scans.
func (s *Store) CountScans(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scan_results`).Scan(&n)
	return n, err
}

// CountHighSeverityScans counts High and Critical scans.
func (s *Store) CountHighSeverityScans(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM scan_results WHERE severity IN ('High', 'Critical')`,
	).Scan(&n)
	return n, err
}

// RecentScans returns the latest scans without their vulnerability payload.
func (s *Store) RecentScans(ctx context.Context, limit int) ([]domain.ScanResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, repo_name, commit_hash, timestamp, severity, auth_integrity_score, drift_delta
		 FROM scan_results ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []domain.ScanResult
	for rows.Next() {
		var sc domain.ScanResult
		var severity string
		if err := rows.Scan(&sc.ID, &sc.RepoName, &sc.CommitHash, &sc.Timestamp,
			&severity, &sc.Score, &sc.DriftDelta); err != nil {
			return nil, err
		}
		sc.Severity = domain.Severity(severity)
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// ScansWithVulnerabilities returns the latest scans including their decoded
// vulnerability lists.
func (s *Store) ScansWithVulnerabilities(ctx context.Context, limit int) ([]domain.ScanResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, repo_name, commit_hash, timestamp, severity, auth_integrity_score, drift_delta, vulnerabilities
		 FROM scan_results ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScans(rows)
}

// UnprocessedScans returns up to limit High/Critical scans that have no
// dispatcher checkpoint yet, oldest first.
func (s *Store) UnprocessedScans(ctx context.Context, limit int) ([]domain.ScanResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sr.id, sr.repo_name, sr.commit_hash, sr.timestamp, sr.severity,
		        sr.auth_integrity_score, sr.drift_delta, sr.vulnerabilities
		 FROM scan_results sr
		 LEFT JOIN jira_processed_scans jps ON sr.id = jps.scan_result_id
		 WHERE jps.id IS NULL
		   AND sr.severity IN ('High', 'Critical')
		 ORDER BY sr.timestamp ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScans(rows)
}

func collectScans(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.ScanResult, error) {
	var scans []domain.ScanResult
	for rows.Next() {
		var sc domain.ScanResult
		var severity string
		var vulns []byte
		if err := rows.Scan(&sc.ID, &sc.RepoName, &sc.CommitHash, &sc.Timestamp,
			&severity, &sc.Score, &sc.DriftDelta, &vulns); err != nil {
			return nil, err
		}
		sc.Severity = domain.Severity(severity)
		if len(vulns) > 0 {
			// A malformed payload degrades to an empty list, never fails the tick.
			_ = json.Unmarshal(vulns, &sc.Vulnerabilities)
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// MarkScanProcessed records the dispatcher checkpoint with insert-or-ignore
// semantics; a scan id appears at most once.
func (s *Store) MarkScanProcessed(ctx context.Context, scanID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jira_processed_scans (scan_result_id) VALUES ($1)
		 ON CONFLICT (scan_result_id) DO NOTHING`, scanID)
	return err
}

// ResetScans truncates the scan store.
func (s *Store) ResetScans(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM scan_results`)
	return err
}

// GraphScan is the projection backing the derived graph endpoint.
type GraphScan struct {
	RepoName        string
	Vulnerabilities []domain.Vulnerability
}

// GraphScans returns repo/vulnerability pairs for the most recent scans.
func (s *Store) GraphScans(ctx context.Context, limit int) ([]GraphScan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT repo_name, vulnerabilities FROM scan_results ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []GraphScan
	for rows.Next() {
		var g GraphScan
		var vulns []byte
		if err := rows.Scan(&g.RepoName, &vulns); err != nil {
			return nil, err
		}
		if len(vulns) > 0 {
			_ = json.Unmarshal(vulns, &g.Vulnerabilities)
		}
		scans = append(scans, g)
	}
	return scans, rows.Err()
}
