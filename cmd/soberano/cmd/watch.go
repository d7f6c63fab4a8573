package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soberano/soberano/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the docs directory and keep the index in sync",
		Long: `Watch the configured documents directory. New and changed files
are reindexed after a debounce window; deleted files are removed
from the index. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce,
		"How long to wait after the last change before indexing")

	return cmd
}

func runWatch(ctx context.Context, debounce time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	w, err := watcher.New(cfg.Paths.DocsDir, a.svc, debounce)
	if err != nil {
		return err
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
