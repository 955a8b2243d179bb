package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tracelify/tracelify/internal/app"
)

func newChunksCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "chunks [doc_id]",
		Short: "List the stored chunks of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, a *app.App) error {
				chunks, err := a.RAG.DocumentChunks(ctx, args[0])
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(cmd, chunks)
				}
				for _, c := range chunks {
					cmd.Printf("%s [%d:%d]\n  %s\n", c.ID, c.Start, c.End, snippet(c.Text, 120))
				}
				return nil
			})
		},
	}
}

func newDeleteCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [doc_id]",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.RAG.DeleteDocument(ctx, args[0])
				if err != nil {
					return err
				}
				if r.jsonOut {
					return r.printJSON(cmd, map[string]any{"doc_id": args[0], "deleted": n})
				}
				cmd.Printf("Deleted %s (%d chunks)\n", args[0], n)
				return nil
			})
		},
	}
}
