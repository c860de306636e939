package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

func newIngestCmd() *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingest pass and print the run as JSON",
		Long: `Fetches the given sources (all enabled sources by default), stores
their postings, and prints the finished run with per-source counts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), appInstance)

			srcs := make([]jobs.Source, 0, len(names))
			for _, name := range names {
				src, err := jobs.ParseSource(name)
				if err != nil {
					return err
				}
				srcs = append(srcs, src)
			}

			run, err := appInstance.Ingest(cmd.Context(), srcs)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			appInstance.Logger().Info("ingest finished",
				zap.String("run_id", run.ID),
				zap.String("status", string(run.Status)))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(run); err != nil {
				return fmt.Errorf("write run: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&names, "source", nil, "source to ingest (repeatable): remotive, jobicy, theirstack")
	return cmd
}
