package domain

import "time"

// Finding statuses.
const (
	FindingOpen          = "open"
	FindingConfirmed     = "confirmed"
	FindingFixed         = "fixed"
	FindingFalsePositive = "false_positive"
)

// Finding is a security finding recorded by red-team operations.
type Finding struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	Category       string    `json:"category"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	Evidence       string    `json:"evidence"`
	Recommendation string    `json:"recommendation"`
	ScanID         *int64    `json:"scan_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FindingUpdate contains optional fields for a partial finding update.
type FindingUpdate struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	Severity       *string `json:"severity,omitempty"`
	Status         *string `json:"status,omitempty"`
	Category       *string `json:"category,omitempty"`
	Endpoint       *string `json:"endpoint,omitempty"`
	Method         *string `json:"method,omitempty"`
	Evidence       *string `json:"evidence,omitempty"`
	Recommendation *string `json:"recommendation,omitempty"`
}

// Ticket is one row of the tracker registry: a created external issue.
type Ticket struct {
	ID           int64     `json:"id"`
	ScanResultID int64     `json:"scan_result_id"`
	FindingIndex int       `json:"finding_index"`
	RepoName     string    `json:"repo_name"`
	Kind         VulnKind  `json:"vulnerability_type"`
	EndpointKey  string    `json:"endpoint_or_file"`
	IssueKey     string    `json:"jira_issue_key"`
	IssueStatus  string    `json:"jira_status"`
	Severity     Severity  `json:"severity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TicketStats aggregates the tracker registry for the stats endpoint.
type TicketStats struct {
	TotalCritical   int `json:"total_critical"`
	TotalMajor      int `json:"total_major"`
	OpenTickets     int `json:"open_tickets"`
	ResolvedTickets int `json:"resolved_tickets"`
	TotalTickets    int `json:"total_tickets"`
}
