// Package dispatcher periodically turns new High/Critical scans into tracker
// tickets, deduplicating against the ticket registry and checkpointing each
// scan exactly once.
package dispatcher

import (
	"context"
	"time"

	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/metrics"
	"github.com/sentinelai/sentinel/internal/tracker"
)

// batchSize bounds how many scans one tick consumes.
const batchSize = 50

// Registry is the slice of the store the dispatcher needs.
type Registry interface {
	UnprocessedScans(ctx context.Context, limit int) ([]domain.ScanResult, error)
	FindOpenTicket(ctx context.Context, repo, endpointOrFile string, kind domain.VulnKind) (string, error)
	SaveTicket(ctx context.Context, t *domain.Ticket) error
	MarkScanProcessed(ctx context.Context, scanID int64) error
}

// Tracker is the slice of the tracker client the dispatcher needs.
type Tracker interface {
	CreateIssue(ctx context.Context, title, description, severity string) (string, error)
	AddComment(ctx context.Context, issueKey, text string) error
}

// Result summarizes one tick.
type Result struct {
	Processed      int `json:"processed"`
	TicketsCreated int `json:"tickets_created"`
	CommentsAdded  int `json:"comments_added"`
}

// Dispatcher runs the notification loop.
type Dispatcher struct {
	registry Registry
	tracker  Tracker
	interval time.Duration
	trigger  chan struct{}
}

// New wires a dispatcher. Intervals below one second are clamped to keep the
// store poll bounded.
func New(registry Registry, trk Tracker, interval time.Duration) *Dispatcher {
	if interval < time.Second {
		interval = time.Second
	}
	return &Dispatcher{
		registry: registry,
		tracker:  trk,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate tick. Non-blocking; a pending trigger is
// collapsed into the next tick.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Run ticks on the configured interval and on explicit triggers until ctx is
// done. Single-dispatcher deployment is assumed; checkpoints guard against
// reprocessing but not against racing ticket creation.
func (d *Dispatcher) Run(ctx context.Context) {
	log := logging.Op()
	log.Info("notification dispatcher started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("notification dispatcher stopped")
			return
		case <-ticker.C:
		case <-d.trigger:
		}

		result, err := d.Tick(ctx)
		if err != nil {
			log.Error("dispatcher tick failed", "error", err)
			continue
		}
		if result.Processed > 0 {
			log.Info("dispatcher tick complete",
				"processed", result.Processed,
				"tickets_created", result.TicketsCreated,
				"comments_added", result.CommentsAdded)
		}
	}
}

// Tick processes one batch of unprocessed scans. Ticket and comment failures
// are logged and absorbed; the checkpoint is recorded unconditionally so a
// scan is consumed at most once.
func (d *Dispatcher) Tick(ctx context.Context) (Result, error) {
	log := logging.Op()

	scans, err := d.registry.UnprocessedScans(ctx, batchSize)
	if err != nil {
		return Result{}, err
	}
	if len(scans) == 0 {
		return Result{}, nil
	}

	var result Result
	for _, scan := range scans {
		qualifying := FilterQualifying(scan.Vulnerabilities, scan.Severity)
		log.Info("processing scan",
			"scan", scan.ID, "repo", scan.RepoName,
			"vulnerabilities", len(scan.Vulnerabilities), "qualifying", len(qualifying))

		for _, iv := range qualifying {
			vuln := iv.Vuln
			endpointOrFile := vuln.EndpointOrFile()

			existing, err := d.registry.FindOpenTicket(ctx, scan.RepoName, endpointOrFile, vuln.Kind)
			if err != nil {
				log.Error("duplicate check failed", "scan", scan.ID, "error", err)
				continue
			}

			if existing != "" {
				comment := tracker.BuildRecurrenceComment(vuln, scan)
				if err := d.tracker.AddComment(ctx, existing, comment); err != nil {
					log.Error("failed to add recurrence comment",
						"issue", existing, "scan", scan.ID, "error", err)
					continue
				}
				metrics.CommentAdded()
				result.CommentsAdded++
				continue
			}

			title := tracker.BuildIssueTitle(scan.Severity, vuln.Kind, scan.RepoName)
			description := tracker.BuildIssueDescription(vuln, scan)
			issueKey, err := d.tracker.CreateIssue(ctx, title, description, string(scan.Severity))
			if err != nil {
				log.Error("failed to create ticket",
					"scan", scan.ID, "finding", iv.Index, "error", err)
				continue
			}
			metrics.TicketCreated()
			result.TicketsCreated++

			ticket := &domain.Ticket{
				ScanResultID: scan.ID,
				FindingIndex: iv.Index,
				RepoName:     scan.RepoName,
				Kind:         vuln.Kind,
				EndpointKey:  endpointOrFile,
				IssueKey:     issueKey,
				Severity:     scan.Severity,
			}
			if err := d.registry.SaveTicket(ctx, ticket); err != nil {
				// Tolerated: the worst case is one duplicate ticket later.
				log.Error("failed to record ticket row", "issue", issueKey, "error", err)
			}
		}

		if err := d.registry.MarkScanProcessed(ctx, scan.ID); err != nil {
			log.Error("failed to checkpoint scan", "scan", scan.ID, "error", err)
		}
		result.Processed++
	}
	return result, nil
}
