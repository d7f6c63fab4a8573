package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index contents and cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	status := a.svc.Status(ctx)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	cmd.Printf("embedding model: %s\n", status.EmbeddingModel)
	cmd.Printf("chunks indexed:  %d\n", status.Chunks)
	cmd.Printf("documents:       %d\n", len(status.Documents))
	for _, doc := range status.Documents {
		cmd.Printf("  %s (%d chunks)\n", doc.Name, doc.Chunks)
	}
	cmd.Printf("answer cache:    %d entries, %d hits, %d misses\n",
		status.Cache.Size, status.Cache.Hits, status.Cache.Misses)
	return nil
}
