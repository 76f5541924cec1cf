package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/domain"
	"github.com/sentinelai/sentinel/internal/queue"
)

func scanCmd() *cobra.Command {
	var branch, commit string

	cmd := &cobra.Command{
		Use:   "scan <owner/repo>",
		Short: "Queue a one-off security scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			q, err := queue.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return fmt.Errorf("init queue: %w", err)
			}
			defer q.Close()

			job := domain.ScanJob{
				ID:     uuid.NewString(),
				Repo:   args[0],
				Branch: branch,
				Commit: commit,
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := q.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("enqueue scan: %w", err)
			}

			fmt.Printf("queued scan %s for %s (%s)\n", job.ID, job.Repo, job.Branch)
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "main", "Branch to scan")
	cmd.Flags().StringVar(&commit, "commit", "latest", "Commit identifier recorded with the result")
	return cmd
}
