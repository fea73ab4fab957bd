// Command studymate runs the StudyMate WhatsApp study assistant.
package main

import (
	"fmt"
	"os"

	"github.com/studymate-ai/studymate/cmd/studymate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
