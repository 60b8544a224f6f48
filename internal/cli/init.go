package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magpiebot/magpie/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the magpie config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Init(configPath, initForce)
		if err != nil {
			return err
		}

		fmt.Printf("\nSaved %s\n", path)
		fmt.Println("Fill in transport.homeserver, transport.user_id and transport.rooms,")
		fmt.Println("export the access token, then start the bot with 'magpie'.")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
