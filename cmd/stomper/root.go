package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stomper",
	Short: "Automated resolution of static-analysis findings",
	Long: `stomper runs configured analysis tools against a repository,
then drives an external coding assistant through an isolated,
concurrent workflow that fixes each affected file, re-verifies the
tool's findings, runs tests, and commits the result — learning which
prompt strategy works for which finding as it goes.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a .stomper/config.yaml file (default: ./.stomper/config.yaml)")
	rootCmd.PersistentFlags().String("root-dir", "", "repository root to operate on (default: current directory)")
	rootCmd.PersistentFlags().Bool("non-interactive", false, "disable spinner/color output and write plain log lines")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
