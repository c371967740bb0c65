package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/magic-research/ragd/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Ingest documents into the index",
		Long: `Loads, chunks, and embeds documents, then persists them to the
local index. The path may be a single file (.pdf, .txt, .md) or a
directory, which is walked recursively. Without a path, the configured
docs directory is ingested.

Unchanged documents (same content hash) are skipped; changed documents
replace their previous chunks.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			path := cfg.DocsDir
			if len(args) == 1 {
				path = args[0]
			}

			release, err := ingest.Lock(cfg.DataDir)
			if err != nil {
				return err
			}
			defer release()

			a, err := buildApp(cfg, false, commandLogger())
			if err != nil {
				return err
			}
			defer a.close(true)

			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("cannot ingest %s: %w", path, err)
			}

			var stats *ingest.Stats
			if info.IsDir() {
				stats, err = a.pipeline.IngestDirectory(cmd.Context(), path)
			} else {
				stats, err = a.pipeline.IngestFile(cmd.Context(), path)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Ingested %d document(s), %d chunk(s); %d unchanged, %d failed (%.1fs)\n",
				stats.Documents, stats.Chunks, stats.Skipped, stats.Failed,
				stats.Elapsed.Seconds())

			if stats.Failed > 0 {
				return fmt.Errorf("%d document(s) failed to ingest", stats.Failed)
			}
			return nil
		},
	}

	return cmd
}
