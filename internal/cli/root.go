// Package cli implements the tracelify command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracelify/tracelify/internal/app"
)

// Bootstrapper opens the pipeline a command runs against.
type Bootstrapper func(ctx context.Context) (*app.App, error)

type runner struct {
	bootstrap Bootstrapper
	jsonOut   bool
}

// NewRootCommand builds the tracelify command tree.
func NewRootCommand(bootstrap Bootstrapper, version string) *cobra.Command {
	r := &runner{bootstrap: bootstrap}

	root := &cobra.Command{
		Use:   "tracelify",
		Short: "Chunk, index and query local documents",
		Long: `Tracelify splits documents into overlapping chunks, indexes their embeddings
and answers questions with citations to the chunks it used.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&r.jsonOut, "json", false, "output results as JSON")

	root.AddCommand(
		newIngestCmd(r),
		newSearchCmd(r),
		newAskCmd(r),
		newChunksCmd(r),
		newDeleteCmd(r),
	)
	return root
}

// with opens the pipeline for the duration of fn.
func (r *runner) with(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := r.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (r *runner) printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
