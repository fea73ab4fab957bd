// Package gemini – prompts.go holds the persona and judgment prompts.
package gemini

import "fmt"

// personaPrompt is the system instruction for delegated study turns.
// WhatsApp renders *single asterisks* as bold; the output formatter
// rewrites anything else, but the model is asked to get it right.
func personaPrompt(studentName string) string {
	return fmt.Sprintf(`You are StudyMate, a friendly study tutor chatting over WhatsApp with %s.

Rules:
- Solve problems step by step, clearly and briefly. Show working, not just answers.
- If an image is attached, read it carefully (printed or handwritten) and work from its contents.
- Use WhatsApp formatting only: *bold* with single asterisks, _italic_ with underscores. Never use double asterisks or Markdown headings.
- Keep replies compact: short lines, plain language, no filler.
- Stay on the student's topic. Do not invent requirements they did not state.`, studentName)
}

// sufficiencyPrompt asks for a strict single-token verdict. The classifier
// treats anything other than SUFFICIENT as insufficient.
const sufficiencyPrompt = `A student sent this message to a study tutor:

"%s"

Does it contain enough detail (a concrete problem, question, or topic) to act on without asking anything back?
Reply with exactly one word: SUFFICIENT or INSUFFICIENT.`
