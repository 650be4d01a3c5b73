package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/m365ctl/internal/adapters/driven/api"
	"github.com/custodia-labs/m365ctl/internal/adapters/driven/session"
	"github.com/custodia-labs/m365ctl/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/m365ctl/internal/adapters/driving/cli"
	"github.com/custodia-labs/m365ctl/internal/adapters/driving/tui"
	"github.com/custodia-labs/m365ctl/internal/config"
	"github.com/custodia-labs/m365ctl/internal/core/services"
	"github.com/custodia-labs/m365ctl/internal/logger"
	"github.com/custodia-labs/m365ctl/internal/microsoft"
)

var version = "dev"

func main() {
	os.Exit(run())
}

//nolint:funlen // main initialisation requires sequential setup of all dependencies
func run() int {
	cli.SetVersion(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Settings come first: they pick the log format and the backend.
	configPath, err := config.DefaultPath()
	if err != nil {
		logger.Error("failed to locate config: %v", err)
		return 1
	}
	settings, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config: %v", err)
		return 1
	}
	logger.SetFormat(logger.Format(settings.Log.Format))
	logger.SetVerbose(settings.Log.Verbose)

	stateDir, err := config.StateDir()
	if err != nil {
		logger.Error("failed to locate state directory: %v", err)
		return 1
	}

	// Query cache shared by every service. Entries past the TTL are never
	// served, so they are dropped on startup.
	cache, err := sqlite.Open(ctx, filepath.Join(stateDir, sqlite.FileName))
	if err != nil {
		logger.Error("failed to open cache: %v", err)
		return 1
	}
	defer cache.Close()
	if n, err := cache.Prune(ctx, settings.Cache.TTL.Std()); err != nil {
		logger.Warn("failed to prune cache: %v", err)
	} else if n > 0 {
		logger.Debug("pruned %d stale cache entries", n)
	}

	// The session manager is the API client's token source, and the client
	// is the manager's auth backend, so they are bound in two steps.
	sessionPath := filepath.Join(stateDir, session.FileName)
	hint := cli.NewLoginHint(os.Stderr)
	manager := services.NewSessionManager(session.NewFileStore(sessionPath), cache, hint)

	userAgent := settings.Server.UserAgent
	if userAgent == "" {
		userAgent = "m365ctl/" + version
	}
	client, err := api.New(api.Options{
		BaseURL:   settings.Server.BaseURL,
		Timeout:   settings.Server.Timeout.Std(),
		UserAgent: userAgent,
	}, manager)
	if err != nil {
		logger.Error("failed to create API client: %v", err)
		return 1
	}
	manager.SetAuthAPI(client.Auth())

	if err := manager.Init(ctx); err != nil {
		logger.Warn("failed to restore session: %v", err)
	}

	ttl := settings.Cache.TTL.Std()
	inflight := services.NewInFlight()
	tenants := services.NewTenantWorkflow(client.Tenants(), cache, ttl, inflight)
	licenses := services.NewLicenseService(client.Licenses(), cache, ttl, inflight)
	sweeper := services.NewSweep(tenants, services.SweepOptions{
		Concurrency: settings.Sweep.Concurrency,
		Limiter: microsoft.NewRateLimiterWithConfig(microsoft.RateLimitConfig{
			RequestsPerSecond: settings.Sweep.RequestsPerSecond,
		}),
		Throttled: api.IsThrottled,
	})

	// Inject services into CLI commands
	cli.SetServices(&cli.Services{
		Session:    manager,
		Guard:      services.NewGuard(manager),
		Tenants:    tenants,
		Users:      services.NewUserService(client.Users(), cache, ttl),
		Licenses:   licenses,
		Domains:    services.NewDomainService(client.Domains(), cache, ttl),
		Roles:      services.NewRoleService(client.Roles()),
		Reports:    services.NewReportService(client.Reports()),
		Sweeper:    sweeper,
		Config:     settings,
		ConfigPath: configPath,
	})

	// Inject services into the dashboard, which also follows logouts made
	// from other terminals.
	watcher := session.NewWatcher(sessionPath)
	cli.SetTUIConfig(&tui.Config{
		Workflow: tenants,
		Licenses: licenses,
		Follow: func(ctx context.Context) error {
			return manager.Follow(ctx, watcher)
		},
		OnSessionEnd: hint.OnRedirect,
	})

	if err := cli.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}
	return 0
}
