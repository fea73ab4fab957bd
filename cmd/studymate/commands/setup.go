package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/studymate-ai/studymate/pkg/studymate/assistant"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Store the Gemini API key and write a starter config",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("Gemini API key (input hidden): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading API key: %w", err)
		}
		key := strings.TrimSpace(string(raw))
		if key == "" {
			return fmt.Errorf("empty API key")
		}

		if err := assistant.StoreAPIKey(key); err != nil {
			// Headless machines often have no keyring; fall back to the
			// config file.
			fmt.Fprintf(os.Stderr, "keyring unavailable (%v), storing key in config file\n", err)
			return writeConfig(key)
		}
		fmt.Println("API key stored in the system keyring.")
		return writeConfig("")
	},
}

// writeConfig writes a starter config if none exists yet.
func writeConfig(apiKey string) error {
	path := configPath
	if path == "" {
		path = assistant.DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s, leaving it untouched.\n", path)
		return nil
	}

	cfg := assistant.DefaultConfig()
	cfg.API.APIKey = apiKey
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s. Run `studymate serve` and scan the QR code to link WhatsApp.\n", path)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
