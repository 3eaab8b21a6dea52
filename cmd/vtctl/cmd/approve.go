package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/visual-test/internal/artifact"
)

// NewApproveCommand promotes the latest captures of the given names to baselines
func NewApproveCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <name>...",
		Short: "Accept new screenshots as baselines",
		Long:  "Copy the latest temp screenshot of each name over its baseline and drop the diff image.",
		Example: `  vtctl approve home
  vtctl approve forms/login settings`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store := artifact.New(cfg)
			for _, name := range args {
				asset, err := store.Resolve(name)
				if err != nil {
					return err
				}
				promoted, err := store.Promote(asset.Name)
				if err != nil {
					return fmt.Errorf("failed to approve %s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved %s -> %s\n", name, promoted.Baseline)
			}
			return nil
		},
	}
}
