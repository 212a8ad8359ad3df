// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rangedl/internal/server"
)

func newServeCmd() *cobra.Command {
	cfg := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an HTTP server for REST + websocket driven downloads",
		Long: `Start an HTTP server that provides:
  - REST API for download management
  - WebSocket for live progress updates

Example:
  rangedl serve
  rangedl serve --port 3000
  rangedl serve --output ./downloads`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.New(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			fmt.Printf("rangedl server listening on %s:%d, saving to %s\n", cfg.Addr, cfg.Port, cfg.DefaultSaveDir)

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Address to bind to")
	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on")
	cmd.Flags().StringVarP(&cfg.DefaultSaveDir, "output", "o", cfg.DefaultSaveDir, "Default destination directory for server-managed downloads")
	cmd.Flags().IntVar(&cfg.MaxThreadCount, "max-threads", cfg.MaxThreadCount, "Upper bound enforced on a job's requested thread count")
	cmd.Flags().StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", nil, "CORS origins allowed to call the API (empty allows all)")

	return cmd
}
