package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "Exercise a poolkeeper worker pool from the command line",
}

// Execute adds all child commands to the root command and parses flags. It
// is called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
