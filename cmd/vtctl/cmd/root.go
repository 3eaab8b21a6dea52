package cmd

import (
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/visual-test/config"
)

// NewRootCommand builds the vtctl command tree
func NewRootCommand() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "vtctl",
		Short:        "Manage visual-test baselines",
		Long:         "Compare, approve and clean up the screenshots produced by the visual-test server.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a visual-test.yaml file")

	load := func() (*config.Config, error) {
		if configFile != "" {
			return config.Load(config.WithConfigFile(configFile))
		}
		return config.Load()
	}

	rootCmd.AddCommand(NewCompareCommand(load))
	rootCmd.AddCommand(NewApproveCommand(load))
	rootCmd.AddCommand(NewCleanCommand(load))
	rootCmd.AddCommand(NewConfigCommand(load))
	rootCmd.AddCommand(NewStatusCommand(load))
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// configLoader resolves the configuration once flags are parsed
type configLoader func() (*config.Config, error)
