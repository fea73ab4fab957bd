// keyring.go resolves the Gemini API key without forcing it into the
// config file: OS keyring first, then environment, then config.
package assistant

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "studymate"
	keyringUser    = "gemini_api_key"
)

// ResolveAPIKey returns the API key from, in order: the OS keyring, the
// STUDYMATE_API_KEY / GEMINI_API_KEY environment variables, and finally the
// config file value.
func ResolveAPIKey(configKey string) string {
	if key, err := keyring.Get(keyringService, keyringUser); err == nil && key != "" {
		return key
	}
	for _, env := range []string{"STUDYMATE_API_KEY", "GEMINI_API_KEY"} {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return configKey
}

// StoreAPIKey saves the key in the OS keyring.
func StoreAPIKey(key string) error {
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return fmt.Errorf("storing API key in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the key from the OS keyring.
func DeleteAPIKey() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil {
		return fmt.Errorf("deleting API key from keyring: %w", err)
	}
	return nil
}
