package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soberano/soberano/internal/store"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files or directories...]",
		Short: "Index documents",
		Long: `Extract, chunk, embed and index the given documents. Supported
formats are PDF, Markdown and plain text. With no arguments the
configured docs directory is ingested.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args)
		},
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var files []string
	dirs := args
	if len(args) == 0 {
		dirs = []string{cfg.Paths.DocsDir}
	}
	for _, arg := range dirs {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("stat %s: %w", arg, err)
		}
		if info.IsDir() {
			results, err := a.svc.IngestDir(ctx, arg)
			if err != nil {
				return err
			}
			printIngestResults(cmd, results)
			continue
		}
		files = append(files, arg)
	}

	if len(files) > 0 {
		results, err := a.svc.IngestFiles(ctx, files)
		if err != nil {
			return err
		}
		printIngestResults(cmd, results)
	}

	return nil
}

func printIngestResults(cmd *cobra.Command, results []store.IngestResult) {
	for _, res := range results {
		line := fmt.Sprintf("%s: %d chunks indexed", res.Source, res.Added)
		if res.Duplicates > 0 {
			line += fmt.Sprintf(" (%d duplicates skipped)", res.Duplicates)
		}
		if res.Rebuilt {
			line += " [index rebuilt for new embedding model]"
		}
		cmd.Println(line)
	}
}
