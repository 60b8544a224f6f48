package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magpiebot/magpie/internal/updater"
	"github.com/magpiebot/magpie/internal/version"
)

var updateCheck bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update magpie to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateCheck {
			latest, newer, err := updater.Check(cmd.Context())
			if err != nil {
				return err
			}
			if latest == nil {
				fmt.Println("No releases found")
				return nil
			}
			if !newer {
				fmt.Printf("Already up to date (v%s)\n", version.Version)
				return nil
			}
			fmt.Printf("New release available: %s (running v%s)\n", latest.Version(), version.Version)
			return nil
		}
		return updater.Update(cmd.Context())
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "only check whether a newer release exists")
	rootCmd.AddCommand(updateCmd)
}
