package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/studymate-ai/studymate/pkg/studymate/assistant"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WhatsApp assistant daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Optional .env for API keys in development.
		_ = godotenv.Load()

		cfg, err := assistant.LoadConfig(configPath)
		if err != nil {
			return err
		}

		logger := assistant.NewLogger(cfg.Logging)
		logger.Info("starting studymate", "version", Version)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return assistant.New(cfg, logger).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
