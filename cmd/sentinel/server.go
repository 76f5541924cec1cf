package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/api"
	"github.com/sentinelai/sentinel/internal/auth"
	"github.com/sentinelai/sentinel/internal/llm"
	"github.com/sentinelai/sentinel/internal/logging"
	"github.com/sentinelai/sentinel/internal/observability"
	"github.com/sentinelai/sentinel/internal/queue"
	"github.com/sentinelai/sentinel/internal/store"
)

func serverCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the analysis backend API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.ServerAddr = httpAddr
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

			mux := http.NewServeMux()
			(&api.BackendHandler{
				Store:     st,
				Queue:     q,
				Primary:   primary,
				Secondary: secondary,
				Webhook:   cfg.Webhook,
			}).RegisterRoutes(mux)
			(&api.SystemHandler{Service: "sentinel-backend", Checker: st}).RegisterRoutes(mux)

			srv := api.NewServer(cfg.Daemon.ServerAddr, mux, auth.Config{
				Header: cfg.Auth.Header,
				Key:    cfg.Auth.Key,
			})

			return serve(ctx, srv, "analysis backend")
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8003", "HTTP listen address")
	return cmd
}

// serve runs an HTTP server until the context is canceled, then drains it.
// Bind failures surface as a non-zero exit.
func serve(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Op().Info(name+" listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Op().Warn("shutdown incomplete", "server", name, "error", err)
	}
	logging.Op().Info(name + " stopped")
	return nil
}
