package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracelify/tracelify/internal/app"
	"github.com/tracelify/tracelify/internal/domain"
)

func newIngestCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Index files or directories",
		Long: `Loads every .txt, .md and .markdown file given, walking directories
recursively, and indexes it under its filename stem. Re-ingesting a file
replaces its previous chunks.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, a *app.App) error {
				var (
					results []domain.IngestResult
					errs    []error
				)
				for _, p := range args {
					info, err := os.Stat(p)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", p, err))
						continue
					}
					if info.IsDir() {
						res, err := a.RAG.IngestDirectory(ctx, p, func(path string, done, total int, ferr error) {
							if !r.jsonOut {
								status := "ok"
								if ferr != nil {
									status = ferr.Error()
								}
								cmd.PrintErrf("[%d/%d] %s: %s\n", done, total, path, status)
							}
						})
						results = append(results, res...)
						if err != nil {
							errs = append(errs, err)
						}
						continue
					}
					res, err := a.RAG.IngestFile(ctx, p)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", p, err))
						continue
					}
					results = append(results, *res)
				}

				if r.jsonOut {
					if err := r.printJSON(cmd, results); err != nil {
						return err
					}
				} else {
					for _, res := range results {
						cmd.Printf("Indexed %s: %d chunks (replaced %d)\n", res.DocID, res.Chunks, res.Replaced)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}
