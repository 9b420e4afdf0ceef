package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var articles, sources bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete indexed articles and/or registered sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !articles && !sources {
				return errors.New("nothing to reset: pass --articles and/or --sources")
			}
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if err := rt.Reset(cmd.Context(), articles, sources); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "reset complete")
			return err
		},
	}
	cmd.Flags().BoolVar(&articles, "articles", false, "delete all articles")
	cmd.Flags().BoolVar(&sources, "sources", false, "delete all sources")
	return cmd
}
