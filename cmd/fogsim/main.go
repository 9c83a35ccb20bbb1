package main

import (
	"os"

	"github.com/casperlundberg/fog-offloader/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
