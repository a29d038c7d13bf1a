package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/acolita/ptyd/internal/bridge"
	"github.com/acolita/ptyd/internal/mcp"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON-lines bridge on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, func(ctx context.Context, rt *runtime) error {
				srv := bridge.NewServer(rt.mgr,
					bridge.WithLogger(rt.logger),
					bridge.WithVersion(Version),
				)
				return srv.Serve(ctx, os.Stdin, os.Stdout)
			})
		},
	}
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the session tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, func(ctx context.Context, rt *runtime) error {
				srv := mcp.NewServer(rt.mgr,
					mcp.WithLogger(rt.logger),
					mcp.WithVersion(Version),
				)
				errCh := make(chan error, 1)
				go func() { errCh <- srv.Run() }()
				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
					return nil
				}
			})
		},
	}
}

// run builds the runtime, serves until fn returns or a signal arrives, then
// tears every session down.
func run(parent context.Context, opts *rootOptions, fn func(context.Context, *runtime) error) error {
	if parent == nil {
		parent = context.Background()
	}
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.logger.Info("starting ptyd",
		slog.String("version", Version),
		slog.Int("max_sessions", rt.cfg.Engine.MaxSessions),
	)
	rt.start(ctx, opts)

	err = fn(ctx, rt)
	if ctx.Err() != nil {
		rt.logger.Info("received shutdown signal")
	}
	stop()
	rt.shutdown()
	return err
}
