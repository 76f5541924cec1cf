package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/consensus"
	"github.com/sentinelai/sentinel/internal/llm"
	"github.com/sentinelai/sentinel/internal/observability"
	"github.com/sentinelai/sentinel/internal/queue"
	"github.com/sentinelai/sentinel/internal/scan"
	"github.com/sentinelai/sentinel/internal/store"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a scan worker consuming the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			defer observability.Shutdown(context.Background())

			st, err := store.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer st.Close()

			q, err := queue.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return fmt.Errorf("init queue: %w", err)
			}
			defer q.Close()

			primary := llm.NewClient("mistral",
				cfg.Reviewers.Primary.BaseURL, cfg.Reviewers.Primary.Model,
				cfg.Reviewers.Primary.APIKey, cfg.Reviewers.Primary.Timeout)
			secondary := llm.NewClient("qwen",
				cfg.Reviewers.Secondary.BaseURL, cfg.Reviewers.Secondary.Model,
				cfg.Reviewers.Secondary.APIKey, cfg.Reviewers.Secondary.Timeout)
			validator := llm.NewValidator(
				cfg.Reviewers.Validator.BaseURL, cfg.Reviewers.Validator.Models,
				cfg.Reviewers.Validator.APIKey, cfg.Reviewers.Validator.Timeout)

			engine := consensus.NewEngine(primary, secondary, validator)
			orch := scan.New(st, engine, scan.Config{
				ArchiveBaseURL: cfg.Scan.ArchiveBaseURL,
				ArchiveTimeout: cfg.Scan.ArchiveTimeout,
				MaxConcurrent:  cfg.Scan.MaxConcurrent,
				Marker:         cfg.Scan.DependencyMarker,
			})

			scan.NewWorker(q, orch).Run(ctx)
			return nil
		},
	}
}
