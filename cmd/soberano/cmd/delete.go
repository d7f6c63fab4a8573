package cmd

import (
	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document>",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			removed, err := a.svc.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d chunks removed\n", args[0], removed)
			return nil
		},
	}
}
