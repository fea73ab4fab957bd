package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/studymate-ai/studymate/pkg/studymate/assistant"
	"github.com/studymate-ai/studymate/pkg/studymate/channels/console"
)

var chatName string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to StudyMate in a local terminal session",
	Long:  "Runs the full dialogue pipeline against a local REPL instead of WhatsApp.\nUseful for trying the assistant before linking an account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := assistant.LoadConfig(configPath)
		if err != nil {
			return err
		}
		// Local session only: no WhatsApp, quieter logs.
		cfg.Channels.WhatsApp.Enabled = false
		if cfg.Logging.Level == "" || cfg.Logging.Level == "info" {
			cfg.Logging.Level = "warn"
		}

		logger := assistant.NewLogger(cfg.Logging)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := assistant.New(cfg, logger)
		a.RegisterChannel(console.New(chatName))
		return a.Run(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatName, "name", "", "your name, used in greetings")
	rootCmd.AddCommand(chatCmd)
}
