package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/magic-research/ragd/internal/store"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, false, commandLogger())
			if err != nil {
				return err
			}
			defer a.close(false)

			ctx := cmd.Context()
			docs, err := a.metadata.CountDocuments(ctx)
			if err != nil {
				return err
			}
			chunks, err := a.metadata.CountChunks(ctx)
			if err != nil {
				return err
			}
			model, err := a.metadata.GetState(ctx, store.StateKeyEmbeddingModel)
			if err != nil {
				return err
			}
			if model == "" {
				model = "(not ingested yet)"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data directory:  %s\n", cfg.DataDir)
			fmt.Fprintf(out, "Documents:       %d\n", docs)
			fmt.Fprintf(out, "Chunks:          %d\n", chunks)
			fmt.Fprintf(out, "Vectors loaded:  %d\n", a.vectors.Count())
			fmt.Fprintf(out, "Embedding model: %s\n", model)

			if docs > 0 {
				list, err := a.metadata.ListDocuments(ctx)
				if err != nil {
					return err
				}
				names := make([]string, len(list))
				for i, d := range list {
					names[i] = d.Name
				}
				fmt.Fprintf(out, "Names:           %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}

	return cmd
}
