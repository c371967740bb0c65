package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		k          int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the ingested documents",
		Long: `Retrieves the most relevant chunks for the question and generates
a grounded answer, citing the source document and chunk of each passage
used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, true, commandLogger())
			if err != nil {
				return err
			}
			defer a.close(false)

			question := strings.Join(args, " ")
			resp, err := a.service.Ask(cmd.Context(), question, k)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Fprintln(out, resp.Answer)
			if resp.Answered {
				fmt.Fprintf(out, "\n(answered by %s/%s in %.1fs)\n",
					resp.Provider, resp.Model, resp.Elapsed.Seconds())
				for _, src := range resp.Sources {
					fmt.Fprintf(out, "  [Source: %s, Chunk %d] score=%.3f\n",
						src.DocumentName, src.ChunkIndex, src.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the full response as JSON")

	return cmd
}
