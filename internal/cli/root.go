package cli

import (
	"github.com/spf13/cobra"

	"github.com/magpiebot/magpie/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "magpie",
	Short:   "Matrix bot that turns links and search commands into uploaded media",
	Version: version.Version,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ~/.config/magpie/config.yml)")
}

func Execute() error {
	return rootCmd.Execute()
}
