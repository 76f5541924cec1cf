package main

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sentinelai/sentinel/internal/observability"
	"github.com/sentinelai/sentinel/internal/proxy"
)

func proxyCmd() *cobra.Command {
	var listenAddr, targetURL string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the pass-through model proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Proxy.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("target") {
				cfg.Proxy.TargetURL = targetURL
			}

			ctx, stop := signalContext()
			defer stop()
			defer observability.Shutdown(context.Background())

			if cfg.Proxy.TakeOverPort {
				if _, portStr, err := net.SplitHostPort(cfg.Proxy.ListenAddr); err == nil {
					if port, err := strconv.Atoi(portStr); err == nil {
						proxy.TakeOverPort(port)
					}
				}
			}

			p, err := proxy.New(cfg.Proxy.TargetURL, cfg.Proxy.Timeout)
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Proxy.ListenAddr, Handler: p}
			return serve(ctx, srv, "model proxy")
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Listen address")
	cmd.Flags().StringVar(&targetURL, "target", "", "Target base URL")
	return cmd
}
