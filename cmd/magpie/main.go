package main

import (
	"os"

	"github.com/magpiebot/magpie/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
