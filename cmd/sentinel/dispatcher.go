package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/api"
	"github.com/sentinelai/sentinel/internal/auth"
	"github.com/sentinelai/sentinel/internal/dispatcher"
	"github.com/sentinelai/sentinel/internal/observability"
	"github.com/sentinelai/sentinel/internal/store"
	"github.com/sentinelai/sentinel/internal/tracker"
)

func dispatcherCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "Run the tracker notification dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.DispatcherAddr = httpAddr
			}

			ctx, stop := signalContext()
			defer stop()
			defer observability.Shutdown(context.Background())

			st, err := store.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer st.Close()

			trk := tracker.NewClient(tracker.Config{
				BaseURL:    cfg.Tracker.BaseURL,
				ProjectKey: cfg.Tracker.ProjectKey,
				UserEmail:  cfg.Tracker.UserEmail,
				APIToken:   cfg.Tracker.APIToken,
				IssueType:  cfg.Tracker.IssueType,
			})

			d := dispatcher.New(st, trk, cfg.Tracker.PollInterval)
			go d.Run(ctx)

			mux := http.NewServeMux()
			(&api.JiraHandler{Store: st, Tracker: trk, Dispatcher: d}).RegisterRoutes(mux)
			(&api.SystemHandler{Service: "sentinel-dispatcher", Checker: st}).RegisterRoutes(mux)

			srv := api.NewServer(cfg.Daemon.DispatcherAddr, mux, auth.Config{
				Header: cfg.Auth.Header,
				Key:    cfg.Auth.Key,
			})
			return serve(ctx, srv, "tracker dispatcher")
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8001", "HTTP listen address")
	return cmd
}
