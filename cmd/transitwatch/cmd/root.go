package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const logo = `
 _                       _ _                 _       _
| |_ _ __ __ _ _ __  ___(_) |___      ____ _| |_ ___| |__
| __| '__/ _` + "`" + ` | '_ \/ __| | __\ \ /\ / / _` + "`" + ` | __/ __| '_ \
| |_| | | (_| | | | \__ \ | |_ \ V  V / (_| | || (__| | | |
 \__|_|  \__,_|_| |_|___/_|\__| \_/\_/ \__,_|\__\___|_| |_|
`

var rootCmd = &cobra.Command{
	Use:   "transitwatch",
	Short: "Crowd-sourced transit incident aggregation service",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(enqueueCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
