package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Register the sources listed under sources.seeds",
		Long: `Adds every configured seed source. Sources that already exist are
left unchanged, so the command can be re-run safely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := rt.Seed(cmd.Context())
			for _, src := range sources {
				if _, werr := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", src.ID, src.Name, src.URL); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}
