package main

import (
	"context"
	"log/slog"

	"github.com/odoomcp/odoo-mcp-go/backend"
	"github.com/odoomcp/odoo-mcp-go/credentials"
	"github.com/odoomcp/odoo-mcp-go/dispatch"
	"github.com/odoomcp/odoo-mcp-go/odoo"
	"github.com/odoomcp/odoo-mcp-go/odoo/fieldcache"
	"github.com/odoomcp/odoo-mcp-go/sessions"
	"github.com/odoomcp/odoo-mcp-go/sessions/memstore"
)

// app wires the dispatcher, session manager, and global controller from one
// configuration.
type app struct {
	cfg        config
	log        *slog.Logger
	dispatcher *dispatch.Dispatcher
	manager    *sessions.Manager

	global   *backend.Controller
	envCreds *credentials.Record
}

func newApp(ctx context.Context, cfg config, log *slog.Logger) *app {
	var cache fieldcache.Cache
	if cfg.RedisCache {
		redisCache, err := fieldcache.NewRedisFromEnv(ctx)
		if err != nil {
			log.Warn("redis cache unavailable; using in-memory cache", slog.Any("error", err))
		} else {
			cache = redisCache
		}
	}
	if cache == nil {
		cache = fieldcache.NewMemory()
	}

	newController := func() *backend.Controller {
		ts := odoo.NewToolSet(log, odoo.WithFieldCache(cache))
		return backend.NewController(log, ts.Register)
	}

	envCreds := credentials.Extract(credentials.FromEnv())
	global := newController()

	dispatcher := dispatch.New(dispatch.Config{
		ServerName:       cfg.ServerName,
		ServerVersion:    version,
		MinimalTools:     cfg.MinimalTools,
		SimplifySchemas:  cfg.SimplifySchemas,
		DetectClient:     cfg.DetectClient,
		MaxResponseBytes: cfg.MaxResponseBytes,
		AutoLogin:        envCreds != nil,
	}, global, log)

	manager := sessions.NewManager(memstore.New(),
		func() sessions.Controller { return newController() },
		log)

	return &app{
		cfg:        cfg,
		log:        log,
		dispatcher: dispatcher,
		manager:    manager,
		global:     global,
		envCreds:   envCreds,
	}
}

// autoConnect performs the environment-driven login on the global controller.
// It is an explicit startup step rather than a constructor side effect; a
// failure is logged and the server starts anyway, exactly as a failed
// session connect leaves the session usable-but-unconnected.
func (a *app) autoConnect(ctx context.Context) {
	if a.envCreds == nil {
		a.log.Info("no environment credentials; running in strict session mode")
		return
	}

	res, err := a.global.CallTool(ctx, sessions.DefaultConnectTool, a.envCreds.Args())
	switch {
	case err != nil:
		a.log.Warn("auto-login failed", slog.Any("error", err))
	case res != nil && res.IsError:
		a.log.Warn("auto-login rejected by backend")
	default:
		a.log.Info("auto-login succeeded", slog.String("url", a.envCreds.URL), slog.String("database", a.envCreds.Database))
	}
}
