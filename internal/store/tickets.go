package store

import (
	"context"
	"fmt"

	"github.com/sentinelai/sentinel/internal/domain"
)

// FindOpenTicket returns the tracker key of the open issue for one
// (repo, endpoint-or-file, kind) tuple, or "" when none exists.
func (s *Store) FindOpenTicket(ctx context.Context, repo, endpointOrFile string, kind domain.VulnKind) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx,
		`SELECT jira_issue_key FROM jira_issues
		 WHERE repo_name = $1 AND endpoint_or_file = $2
		   AND vulnerability_type = $3 AND jira_status = 'Open'
		 LIMIT 1`,
		repo, endpointOrFile, string(kind),
	).Scan(&key)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("find open ticket: %w", err)
	}
	return key, nil
}

// SaveTicket records a created tracker issue.
func (s *Store) SaveTicket(ctx context.Context, t *domain.Ticket) error {
	status := t.IssueStatus
	if status == "" {
		status = "Open"
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO jira_issues
			(scan_result_id, finding_index, repo_name, vulnerability_type,
			 endpoint_or_file, jira_issue_key, jira_status, severity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		t.ScanResultID, t.FindingIndex, t.RepoName, string(t.Kind),
		t.EndpointKey, t.IssueKey, status, string(t.Severity),
	)
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	t.IssueStatus = status
	return nil
}

// ListTickets returns tickets newest first.
func (s *Store) ListTickets(ctx context.Context, limit int) ([]domain.Ticket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scan_result_id, finding_index, repo_name, vulnerability_type,
		        endpoint_or_file, jira_issue_key, jira_status, severity, created_at, updated_at
		 FROM jira_issues ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

// TicketsForScan returns tickets originating from one scan.
func (s *Store) TicketsForScan(ctx context.Context, scanID int64) ([]domain.Ticket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scan_result_id, finding_index, repo_name, vulnerability_type,
		        endpoint_or_file, jira_issue_key, jira_status, severity, created_at, updated_at
		 FROM jira_issues WHERE scan_result_id = $1 ORDER BY created_at DESC`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func collectTickets(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		var kind, severity string
		if err := rows.Scan(&t.ID, &t.ScanResultID, &t.FindingIndex, &t.RepoName,
			&kind, &t.EndpointKey, &t.IssueKey, &t.IssueStatus, &severity,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Kind = domain.VulnKind(kind)
		t.Severity = domain.Severity(severity)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// GetTicketStats aggregates the tracker registry.
func (s *Store) GetTicketStats(ctx context.Context) (domain.TicketStats, error) {
	var stats domain.TicketStats
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE severity = 'Critical'),
			COUNT(*) FILTER (WHERE severity = 'High'),
			COUNT(*) FILTER (WHERE jira_status = 'Open'),
			COUNT(*) FILTER (WHERE jira_status <> 'Open'),
			COUNT(*)
		 FROM jira_issues`,
	).Scan(&stats.TotalCritical, &stats.TotalMajor, &stats.OpenTickets,
		&stats.ResolvedTickets, &stats.TotalTickets)
	return stats, err
}
