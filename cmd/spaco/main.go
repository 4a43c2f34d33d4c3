package main

import (
	"os"

	"github.com/spaco-sound/spaco/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
