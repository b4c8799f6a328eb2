package main

import (
	"fmt"
	"os"

	"github.com/m3rciful/chatgate/core/bot"
	"github.com/m3rciful/chatgate/core/cmd"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		Help:              bot.CommandList("Verfügbare Befehle:"),
	})
	if err != nil {
		// Already logged by the runner; the structured logger is closed by now.
		fmt.Fprintln(os.Stderr, "chatgate:", err)
		os.Exit(1)
	}
}
