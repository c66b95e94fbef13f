package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keepstack/keeprag/internal/search"
)

func newQueryCmd() *cobra.Command {
	var (
		topK      int
		threshold float64
		mode      string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the embedded knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if topK == 0 {
				topK = a.cfg.Search.TopK
			}
			if threshold == 0 {
				threshold = a.cfg.Search.ScoreThreshold
			}
			if mode == "" {
				mode = a.cfg.Search.Mode
			}

			resp, err := a.engine.Answer(cmd.Context(), strings.Join(args, " "), search.Options{
				TopK:      topK,
				Threshold: threshold,
				Mode:      search.Mode(mode),
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Answer)
			if len(resp.Sources) > 0 {
				fmt.Fprintf(out, "\nSources (%d):\n", len(resp.Sources))
				for i, src := range resp.Sources {
					fmt.Fprintf(out, "  %2d. article=%d section=%d chunk=%d score=%.3f type=%s\n",
						i+1, src.ArticleID, src.SectionID, src.ChunkID, src.Score, src.SectionType)
				}
			}
			fmt.Fprintf(out, "\nmode=%s embed=%dms search=%dms generate=%dms total=%dms\n",
				resp.SearchMode, resp.QueryEmbeddingTimeMS, resp.SearchTimeMS,
				resp.GenerationTimeMS, resp.TotalTimeMS)
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Maximum number of sources (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity score (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "", "Search mode: layered, parallel, or single")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	return cmd
}
