package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinelai/sentinel/internal/domain"
)

// CreateFinding inserts one finding and fills the generated fields.
func (s *Store) CreateFinding(ctx context.Context, f *domain.Finding) error {
	if f.Status == "" {
		f.Status = domain.FindingOpen
	}
	if f.Severity == "" {
		f.Severity = "medium"
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO redteam_findings
			(title, description, severity, status, category, endpoint, method,
			 evidence, recommendation, scan_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		f.Title, f.Description, f.Severity, f.Status, f.Category, f.Endpoint,
		f.Method, f.Evidence, f.Recommendation, f.ScanID,
	)
	if err := row.Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

// CreateFindings inserts a batch of findings in a single transaction. Used by
// the red-team cycle so a partial exploit batch never persists.
func (s *Store) CreateFindings(ctx context.Context, findings []*domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range findings {
		if f.Status == "" {
			f.Status = domain.FindingOpen
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO redteam_findings
				(title, description, severity, status, category, endpoint, method,
				 evidence, recommendation, scan_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id, created_at, updated_at`,
			f.Title, f.Description, f.Severity, f.Status, f.Category, f.Endpoint,
			f.Method, f.Evidence, f.Recommendation, f.ScanID,
		)
		if err := row.Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetFinding returns one finding, or nil when absent.
func (s *Store) GetFinding(ctx context.Context, id int64) (*domain.Finding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, description, severity, status, category, endpoint,
		        method, evidence, recommendation, scan_id, created_at, updated_at
		 FROM redteam_findings WHERE id = $1`, id)
	f, err := scanFinding(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// FindingFilter narrows ListFindings.
type FindingFilter struct {
	Severity string
	Status   string
	Limit    int
	Offset   int
}

// ListFindings returns findings newest first under the given filter.
func (s *Store) ListFindings(ctx context.Context, filter FindingFilter) ([]domain.Finding, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	var conds []string
	var args []any
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT id, title, description, severity, status, category, endpoint,
	                 method, evidence, recommendation, scan_id, created_at, updated_at
	          FROM redteam_findings`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []domain.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, *f)
	}
	return findings, rows.Err()
}

// UpdateFinding applies a partial update and returns the new row; nil when
// the finding does not exist.
func (s *Store) UpdateFinding(ctx context.Context, id int64, update domain.FindingUpdate) (*domain.Finding, error) {
	sets := []string{"updated_at = NOW()"}
	var args []any

	add := func(col string, val *string) {
		if val != nil {
			args = append(args, *val)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("title", update.Title)
	add("description", update.Description)
	add("severity", update.Severity)
	add("status", update.Status)
	add("category", update.Category)
	add("endpoint", update.Endpoint)
	add("method", update.Method)
	add("evidence", update.Evidence)
	add("recommendation", update.Recommendation)

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE redteam_findings SET %s WHERE id = $%d
		 RETURNING id, title, description, severity, status, category, endpoint,
		           method, evidence, recommendation, scan_id, created_at, updated_at`,
		strings.Join(sets, ", "), len(args))

	f, err := scanFinding(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// DeleteFinding removes one finding; reports whether a row existed.
func (s *Store) DeleteFinding(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM redteam_findings WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanFinding(row interface{ Scan(dest ...any) error }) (*domain.Finding, error) {
	var f domain.Finding
	var description, category, endpoint, method, evidence, recommendation *string
	if err := row.Scan(&f.ID, &f.Title, &description, &f.Severity, &f.Status,
		&category, &endpoint, &method, &evidence, &recommendation,
		&f.ScanID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	f.Description = deref(description)
	f.Category = deref(category)
	f.Endpoint = deref(endpoint)
	f.Method = deref(method)
	f.Evidence = deref(evidence)
	f.Recommendation = deref(recommendation)
	return &f, nil
}
