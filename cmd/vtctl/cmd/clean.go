package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/visual-test/internal/artifact"
	"github.com/babelcloud/gbox/packages/visual-test/internal/common"
)

type cleanOptions struct {
	MaxAge       time.Duration
	OutputFormat string
}

// NewCleanCommand removes stale temp and diff images
func NewCleanCommand(load configLoader) *cobra.Command {
	opts := &cleanOptions{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove old temp and diff images",
		Long:  "Remove temp and diff images older than --max-age. Baselines are never removed.",
		Example: `  vtctl clean                 # Use the configured max age
  vtctl clean --max-age 0s    # Remove every temp and diff image`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				opts.MaxAge = cfg.Reclaim.MaxAge
			}
			if opts.MaxAge < 0 {
				return fmt.Errorf("--max-age must not be negative")
			}

			result, err := artifact.New(cfg).Reclaim(cmd.Context(), opts.MaxAge)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.OutputFormat == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintf(out, "Removed %d images older than %s\n", len(result.Removed), common.FormatDurationConcise(opts.MaxAge))
			for _, f := range result.Removed {
				fmt.Fprintf(out, "  %s\n", f.Path)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  error: %s\n", e)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&opts.MaxAge, "max-age", 0, "Remove images older than this")
	flags.StringVar(&opts.OutputFormat, "output", "text", "Output format (json or text)")

	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}
