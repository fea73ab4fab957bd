// Package commands implements the studymate CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "studymate",
	Short:         "StudyMate, a WhatsApp study assistant",
	Long:          "StudyMate answers study questions over WhatsApp: step-by-step solutions,\nphotographed exercises, and focused clarifying questions when a request is vague.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./studymate.yaml)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
