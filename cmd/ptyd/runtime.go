package main

import (
	"context"
	"log/slog"
	"os/user"
	"sync"

	"github.com/acolita/ptyd/internal/config"
	"github.com/acolita/ptyd/internal/logging"
	"github.com/acolita/ptyd/internal/metrics"
	"github.com/acolita/ptyd/internal/recording"
	"github.com/acolita/ptyd/internal/security"
	"github.com/acolita/ptyd/internal/session"
	"github.com/acolita/ptyd/internal/sudo"
)

// runtime holds the long-lived components shared by the serve and mcp
// commands.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	sudo    *sudo.Service
	mgr     *session.Manager
	watcher *config.Watcher

	wg sync.WaitGroup
}

func newRuntime(opts *rootOptions) (*runtime, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(true),
	}

	sudoOpts := []sudo.ServiceOption{
		sudo.WithServiceLogger(logger),
		sudo.WithObserver(rt.metrics.Sudo),
	}
	if store, account := passwordStore(cfg, logger); store != nil {
		sudoOpts = append(sudoOpts, sudo.WithPasswordStore(store, account))
	}
	rt.sudo, err = sudo.NewServiceFromConfig(cfg.Sudo, sudoOpts...)
	if err != nil {
		return nil, err
	}

	mgrOpts := []session.ManagerOption{
		session.WithManagerLogger(logger),
		session.WithMetrics(rt.metrics),
		session.WithSudo(rt.sudo),
	}
	if cfg.Recording.Enabled {
		mgrOpts = append(mgrOpts, session.WithRecording(
			recording.NewManager(cfg.Recording.Path, recording.WithLogger(logger)),
		))
	}
	rt.mgr = session.NewManager(cfg, mgrOpts...)
	return rt, nil
}

// passwordStore returns the OS keyring when enabled and reachable.
func passwordStore(cfg *config.Config, logger *slog.Logger) (*security.KeyringStore, string) {
	if !cfg.Sudo.UseKeyring {
		return nil, ""
	}
	u, err := user.Current()
	if err != nil {
		logger.Warn("keyring disabled: cannot resolve current user", slog.String("error", err.Error()))
		return nil, ""
	}
	ks := security.NewKeyringStore()
	if !ks.IsEnabled() {
		logger.Warn("keyring disabled: not available on this host")
		return nil, ""
	}
	return ks, u.Username
}

// start launches the reaper, the metrics endpoint and config hot-reload.
func (rt *runtime) start(ctx context.Context, opts *rootOptions) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		session.NewReaper(rt.mgr).Run(ctx)
	}()

	if addr := rt.cfg.Metrics.Listen; addr != "" {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			if err := rt.metrics.Serve(ctx, addr); err != nil {
				rt.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		rt.logger.Info("metrics enabled", slog.String("listen", addr))
	}

	if opts.configPath == "" {
		return
	}
	w, err := config.NewWatcher(opts.configPath, func(cfg *config.Config) {
		opts.override(cfg)
		if err := rt.mgr.UpdateConfig(cfg); err != nil {
			rt.logger.Warn("config update rejected", slog.String("error", err.Error()))
			return
		}
		rt.logger.Info("config reloaded", slog.String("path", opts.configPath))
	}, rt.logger)
	if err != nil {
		rt.logger.Warn("config hot-reload disabled", slog.String("error", err.Error()))
		return
	}
	rt.watcher = w
	rt.logger.Info("config hot-reload enabled", slog.String("path", opts.configPath))
}

// shutdown closes every session and waits for background goroutines.
// ctx must already be cancelled or about to be.
func (rt *runtime) shutdown() {
	if rt.watcher != nil {
		_ = rt.watcher.Close()
	}
	rt.mgr.CloseAll()
	rt.wg.Wait()
	rt.logger.Info("shutdown complete")
}
