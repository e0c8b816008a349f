package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odoomcp/odoo-mcp-go/stdioserver"
)

func newStdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve the MCP stdio transport on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// stdout belongs to the protocol; newLogger already targets stderr.
			log := newLogger(cfg.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := newApp(ctx, cfg, log)
			a.autoConnect(ctx)

			return stdioserver.New(a.dispatcher, stdioserver.WithLogger(log)).Serve(ctx)
		},
	}
}
