package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/api"
	"github.com/sentinelai/sentinel/internal/auth"
	"github.com/sentinelai/sentinel/internal/llm"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/observability"
	"github.com/sentinelai/sentinel/internal/redteam"
	"github.com/sentinelai/sentinel/internal/store"
)

func redteamCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "redteam",
		Short: "Run the red-team attack simulator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.RedTeamAddr = httpAddr
			}

			ctx, stop := signalContext()
			defer stop()
			defer observability.Shutdown(context.Background())

			st, err := store.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer st.Close()

			templates, err := redteam.LoadTemplates(cfg.RedTeam.TemplatesFile)
			if err != nil {
				return fmt.Errorf("load attack templates: %w", err)
			}
			audit, err := logging.NewAuditLogger(cfg.RedTeam.AuditLogPath)
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}
			defer audit.Close()

			sim := redteam.NewSimulator(cfg.RedTeam.BackendURL, templates, nil, audit)

			primary := llm.NewClient("mistral",
				cfg.Reviewers.Primary.BaseURL, cfg.Reviewers.Primary.Model,
				cfg.Reviewers.Primary.APIKey, cfg.Reviewers.Primary.Timeout)
			secondary := llm.NewClient("qwen",
				cfg.Reviewers.Secondary.BaseURL, cfg.Reviewers.Secondary.Model,
				cfg.Reviewers.Secondary.APIKey, cfg.Reviewers.Secondary.Timeout)

			mux := http.NewServeMux()
			(&api.RedTeamHandler{
				Simulator: sim,
				Findings:  st,
				Primary:   primary,
				Secondary: secondary,
			}).RegisterRoutes(mux)
			(&api.FindingHandler{Store: st}).RegisterRoutes(mux)
			(&api.SystemHandler{Service: "sentinel-red-team", Checker: st}).RegisterRoutes(mux)

			srv := api.NewServer(cfg.Daemon.RedTeamAddr, mux, auth.Config{
				Header: cfg.Auth.Header,
				Key:    cfg.Auth.Key,
			})
			return serve(ctx, srv, "red team API")
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8004", "HTTP listen address")
	return cmd
}
