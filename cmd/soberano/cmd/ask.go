package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/soberano/soberano/internal/rag"
)

func newAskCmd() *cobra.Command {
	var source string
	var conversation string
	var mode string
	var temperature float64
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about your documents",
		Long: `Answer a question using the indexed documents. The answer cites
the passages it was grounded on.

Use --source to restrict retrieval to one document, and
--conversation to continue an earlier thread.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rag.AskRequest{
				Question:       strings.Join(args, " "),
				Source:         source,
				ConversationID: conversation,
				Mode:           mode,
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			return runAsk(cmd, req, showSources)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Restrict retrieval to one document")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Conversation ID to continue")
	cmd.Flags().StringVar(&mode, "mode", "", `Search mode: "single" (one document) or "multi" (whole corpus)`)
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature override")
	cmd.Flags().BoolVar(&showSources, "sources", true, "Print cited passages")

	return cmd
}

func runAsk(cmd *cobra.Command, req rag.AskRequest, showSources bool) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	answer, err := a.svc.Ask(ctx, req)
	if err != nil {
		return err
	}

	cmd.Println(answer.Answer)

	if showSources && answer.Grounded && len(answer.Citations) > 0 {
		cmd.Println()
		cmd.Println("Fuentes:")
		for _, c := range answer.Citations {
			cmd.Printf("  [%d] %s (página %d, relevancia %.2f)\n", c.ID, c.Source, c.Page, c.Score)
		}
	}

	cmd.Println()
	cmd.Printf("conversación: %s\n", answer.ConversationID)
	return nil
}
