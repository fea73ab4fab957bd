// Package resolver – format.go enforces the output contract before
// anything leaves the core: exactly the two fields {type, content},
// WhatsApp-safe text, single-asterisk emphasis only, and no interactive
// button markup (an external layer appends those after type = answer).
package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedOutput marks a contract violation coming from an upstream
// component. It is a programming-invariant failure: the turn degrades to
// the safe fallback and the violation is logged, never silently shipped.
var ErrMalformedOutput = errors.New("malformed output result")

var (
	boldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	underboldRe  = regexp.MustCompile(`__([^_]+)__`)
	headingRe    = regexp.MustCompile(`(?m)^#+\s+(.*)$`)
	buttonTagRe  = regexp.MustCompile(`\[\[(?:button|buttons|quick_reply)[^\]]*\]\]\n?`)
	bulletDashRe = regexp.MustCompile(`(?m)^-\s+`)
)

// Finalize validates and normalizes an output result. Upstream content may
// arrive in generic Markdown (the generative capability is told to use
// WhatsApp markup, but is not trusted to): double-asterisk bold is
// rewritten to single-asterisk, headings become bold lines, dashes become
// bullets, button tags are stripped. A result that still violates the
// contract after rewriting is returned as an error.
func Finalize(res OutputResult) (OutputResult, error) {
	if res.Type != TypeAnswer && res.Type != TypeClarification {
		return OutputResult{}, fmt.Errorf("%w: unknown type %q", ErrMalformedOutput, res.Type)
	}

	content := res.Content
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = buttonTagRe.ReplaceAllString(content, "")
	content = boldRe.ReplaceAllString(content, "*$1*")
	// ${1} keeps the trailing underscore out of the group name.
	content = underboldRe.ReplaceAllString(content, "_${1}_")
	content = headingRe.ReplaceAllString(content, "*$1*")
	content = bulletDashRe.ReplaceAllString(content, "• ")
	content = strings.TrimSpace(content)

	if content == "" {
		return OutputResult{}, fmt.Errorf("%w: empty content", ErrMalformedOutput)
	}
	if strings.Contains(content, "**") {
		return OutputResult{}, fmt.Errorf("%w: double emphasis survived rewrite", ErrMalformedOutput)
	}

	return OutputResult{Type: res.Type, Content: content}, nil
}

// SafeFallback is the in-persona generic message shipped when a turn hits
// a fatal contract violation.
func SafeFallback(name string) OutputResult {
	return OutputResult{
		Type:    TypeAnswer,
		Content: fmt.Sprintf("Sorry %s, something went wrong on my side. Could you send that again?", name),
	}
}
