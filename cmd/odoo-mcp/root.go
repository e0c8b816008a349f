package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/cobra"

	"github.com/odoomcp/odoo-mcp-go/internal/logctx"
)

var version = "0.4.0"

// config is the environment-driven server configuration. Flags override
// individual fields after decoding.
type config struct {
	ListenAddr       string `env:"LISTEN_ADDR,default=127.0.0.1:8080"`
	ServerName       string `env:"MCP_SERVER_NAME,default=odoo-mcp"`
	LogLevel         string `env:"LOG_LEVEL,default=info"`
	BearerToken      string `env:"MCP_BEARER_TOKEN,default="`
	MinimalTools     bool   `env:"MCP_MINIMAL_TOOLS,default=false"`
	SimplifySchemas  bool   `env:"MCP_SIMPLIFY_SCHEMAS,default=false"`
	DetectClient     bool   `env:"MCP_DETECT_CLIENT,default=true"`
	MaxResponseBytes int    `env:"MCP_MAX_RESPONSE_BYTES,default=1048576"`
	RedisCache       bool   `env:"MCP_REDIS_CACHE,default=false"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := envdecode.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. All diagnostics go to stderr so the
// stdio transport can own stdout exclusively.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	h := logctx.Handler{Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})}
	return slog.New(h)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "odoo-mcp",
		Short:         "MCP server exposing an Odoo ERP backend as callable tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStdioCmd())
	return root
}
