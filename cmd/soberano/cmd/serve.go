package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soberano/soberano/internal/server"
	"github.com/soberano/soberano/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API for ingesting documents and asking questions.

With --watch the documents directory is also monitored and changed
files are reindexed automatically.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Also watch the docs directory for changes")

	return cmd
}

func runServe(ctx context.Context, watch bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(a.svc, cfg.Server, cfg.Paths.DocsDir)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.Server.Addr)
		return srv.ListenAndServe()
	})

	if watch {
		w, err := watcher.New(cfg.Paths.DocsDir, a.svc, watcher.DefaultDebounce)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
