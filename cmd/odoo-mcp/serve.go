package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odoomcp/odoo-mcp-go/httpserver"
)

func newServeCmd() *cobra.Command {
	var (
		addr        string
		bearerToken string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP HTTP transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("bearer-token") {
				cfg.BearerToken = bearerToken
			}

			log := newLogger(cfg.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := newApp(ctx, cfg, log)
			a.autoConnect(ctx)

			srv := httpserver.New(a.dispatcher, a.manager, log,
				httpserver.WithBearerToken(cfg.BearerToken))

			httpSrv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("http transport listening", slog.String("addr", cfg.ListenAddr))
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&bearerToken, "bearer-token", "", "require this bearer token on protocol routes")
	return cmd
}
