package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/studymate-ai/studymate/pkg/studymate/assistant"
	"github.com/studymate-ai/studymate/pkg/studymate/store"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check configuration, database, and API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := assistant.LoadConfig(configPath)
		if err != nil {
			fmt.Println("config:   FAIL:", err)
			return err
		}
		fmt.Println("config:   ok")

		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			fmt.Println("database: FAIL:", err)
			return err
		}
		defer db.Close()
		if err := db.PingContext(cmd.Context()); err != nil {
			fmt.Println("database: FAIL:", err)
			return err
		}
		fmt.Printf("database: ok (%s)\n", cfg.Database.Path)

		if assistant.ResolveAPIKey(cfg.API.APIKey) == "" {
			fmt.Println("api key:  MISSING: run `studymate setup` or set GEMINI_API_KEY")
			return fmt.Errorf("no API key configured")
		}
		fmt.Println("api key:  ok")

		var sessions int
		err = db.QueryRowContext(cmd.Context(),
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'whatsmeow_device'`).Scan(&sessions)
		if err == nil && sessions > 0 {
			fmt.Println("whatsapp: session store present")
		} else {
			fmt.Println("whatsapp: no session yet (scan QR on first `studymate serve`)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
