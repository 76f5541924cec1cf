package scan

import (
	"context"
	"time"

	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/logging"
)

// JobSource leases scan jobs; the Redis queue satisfies it.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*domain.ScanJob, error)
}

// Worker consumes scan jobs until its context is canceled. A failed scan is
// logged and the worker moves on; the job is not requeued.
type Worker struct {
	queue JobSource
	orch  *Orchestrator
}

// NewWorker wires a queue consumer.
func NewWorker(queue JobSource, orch *Orchestrator) *Worker {
	return &Worker{queue: queue, orch: orch}
}

// Run blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	log := logging.Op()
	log.Info("scan worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("scan worker stopped")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error("queue poll failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if _, err := w.orch.Run(ctx, *job); err != nil {
			log.Error("scan failed", "job", job.ID, "repo", job.Repo, "error", err)
		}
	}
}
