package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracelify/tracelify/internal/app"
)

func newSearchCmd(r *runner) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Show the chunks most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return r.with(cmd, func(ctx context.Context, a *app.App) error {
				results, err := a.RAG.Search(ctx, query, topK)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(cmd, results)
				}
				if len(results) == 0 {
					cmd.Println("No results found.")
					return nil
				}
				for _, res := range results {
					cmd.Printf("  [%d] %s (%.3f)\n", res.Rank, res.Chunk.ID, res.Score)
					cmd.Printf("      %s\n\n", snippet(res.Chunk.Text, 160))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to return (0 uses TOP_K)")
	return cmd
}

func newAskCmd(r *runner) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return r.with(cmd, func(ctx context.Context, a *app.App) error {
				answer, err := a.RAG.Ask(ctx, question, topK)
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(cmd, answer)
				}
				cmd.Println(answer.Answer)
				if len(answer.Sources) > 0 {
					cmd.Println()
					cmd.Println("Sources:")
					for _, s := range answer.Sources {
						name := s.Filename
						if name == "" {
							name = s.DocID
						}
						cmd.Printf("  [%d] %s (%s, %.3f)\n", s.Rank, s.ChunkID, name, s.Score)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of context chunks (0 uses TOP_K)")
	return cmd
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
