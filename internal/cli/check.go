package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/magpiebot/magpie/internal/check"
	"github.com/magpiebot/magpie/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that yt-dlp, ffmpeg and ffprobe are installed",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadOrDefault(configPath)
		if !check.Print(os.Stdout, check.Run(cfg)) {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
