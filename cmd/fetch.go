package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch and extract one page without indexing it",
		Long: `Fetches a single page with crawler.page_timeout, runs the content
extractor and prints the result. Nothing is stored and no links are followed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			page, err := rt.FetchPage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "title: %s\nsnippet: %s\nlinks: %d\n", page.Title, page.Snippet, len(page.Links)); err != nil {
				return err
			}
			if showText {
				_, err = fmt.Fprintf(out, "\n%s\n", page.Text)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "print the extracted text")
	return cmd
}
