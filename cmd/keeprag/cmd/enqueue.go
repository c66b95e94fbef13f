package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/keepstack/keeprag/internal/store"
)

func newEnqueueCmd() *cobra.Command {
	var (
		articleID   int64
		title       string
		sectionID   int64
		sectionType string
		language    string
		file        string
		private     bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Store a section and queue it for embedding",
		Long: `Saves an article and section row, then enqueues an embedding job
for it. Section content comes from --file, or stdin when --file is "-".
This is a tooling command; in production the article pipeline owns these rows.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := readContent(file)
			if err != nil {
				return err
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.store.SaveArticle(ctx, &store.Article{
				ID:        articleID,
				Title:     title,
				IsPrivate: private,
			}); err != nil {
				return err
			}
			if err := a.store.SaveSection(ctx, &store.Section{
				ID:          sectionID,
				ArticleID:   articleID,
				Language:    language,
				SectionType: sectionType,
				Content:     content,
			}); err != nil {
				return err
			}

			job, err := a.store.EnqueueJob(ctx, sectionID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %d for section %d\n", job.ID, sectionID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&articleID, "article", 0, "Article id")
	cmd.Flags().StringVar(&title, "title", "", "Article title")
	cmd.Flags().Int64Var(&sectionID, "section", 0, "Section id")
	cmd.Flags().StringVar(&sectionType, "type", "transcript", "Section type")
	cmd.Flags().StringVar(&language, "language", "en", "Section language")
	cmd.Flags().StringVar(&file, "file", "-", "Content file, or - for stdin")
	cmd.Flags().BoolVar(&private, "private", false, "Mark the article private (excluded from search)")
	_ = cmd.MarkFlagRequired("article")
	_ = cmd.MarkFlagRequired("section")
	return cmd
}

func readContent(file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read content file: %w", err)
	}
	return string(data), nil
}
