// Package resolver – topic.go implements topic shift detection. The
// signature function is deliberately lightweight (keyword/category based);
// it is pluggable so a semantic detector can replace it without touching
// the decision engine.
package resolver

import (
	"sort"
	"strings"
)

// DefaultTopicThreshold is the similarity below which a topic shift is
// signaled. Token-overlap similarity between study messages on the same
// subject rarely drops under 0.2 in practice; the value is configurable.
const DefaultTopicThreshold = 0.2

// minShiftTokens is the minimum number of content tokens a message needs
// before it can trigger a shift. Short follow-ups ("and then?", "why?")
// carry too little signal to invalidate context.
const minShiftTokens = 3

// subjectLexicon maps keywords to coarse subject categories. Two messages
// in the same category never shift, regardless of token overlap.
var subjectLexicon = map[string]string{
	"math": "math", "maths": "math", "algebra": "math", "geometry": "math",
	"calculus": "math", "equation": "math", "fraction": "math", "root": "math",
	"integral": "math", "derivative": "math", "simplify": "math", "solve": "math",
	"triangle": "math", "probability": "math",

	"physics": "science", "chemistry": "science", "biology": "science",
	"atom": "science", "cell": "science", "force": "science", "energy": "science",
	"reaction": "science", "molecule": "science", "velocity": "science",

	"essay": "writing", "paragraph": "writing", "write": "writing",
	"grammar": "writing", "letter": "writing", "summary": "writing",
	"poem": "writing",

	"history": "history", "war": "history", "revolution": "history",
	"geography": "geography", "map": "geography", "climate": "geography",
}

// stopwords are dropped from topical signatures.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"i": true, "me": true, "my": true, "you": true, "your": true, "it": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"and": true, "or": true, "but": true, "this": true, "that": true,
	"can": true, "could": true, "please": true, "help": true, "do": true,
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"does": true, "about": true, "so": true, "then": true, "now": true,
}

// SignatureFunc computes a topical signature (normalized content tokens)
// for a message.
type SignatureFunc func(text string) []string

// TopicDetector compares incoming messages against the stored topic tag.
type TopicDetector struct {
	threshold float64
	signature SignatureFunc
}

// NewTopicDetector creates a detector with the given similarity threshold.
// A threshold <= 0 uses DefaultTopicThreshold.
func NewTopicDetector(threshold float64) *TopicDetector {
	if threshold <= 0 {
		threshold = DefaultTopicThreshold
	}
	return &TopicDetector{threshold: threshold, signature: TokenSignature}
}

// SetSignature replaces the signature function (pluggable capability).
func (d *TopicDetector) SetSignature(fn SignatureFunc) {
	if fn != nil {
		d.signature = fn
	}
}

// TokenSignature is the default signature: lowercased content tokens with
// punctuation and stopwords removed, deduplicated and sorted.
func TokenSignature(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	sort.Strings(tokens)
	return tokens
}

// Detect compares the cleaned text of a new message against the current
// topic tag. It returns whether a shift occurred and the tag to store.
// With no stored tag (first message) there is never a shift; the tag is
// initialized from the message.
func (d *TopicDetector) Detect(text, current string) (shift bool, tag string) {
	sig := d.signature(text)
	newTag := makeTag(sig)

	if current == "" {
		return false, newTag
	}

	// A lexicon category change decides before the short-message guard:
	// "write me an essay" after algebra is a shift even at two tokens.
	curTokens := strings.Fields(current)
	newCat, curCat := category(sig), category(curTokens)
	if newCat != "" && curCat != "" {
		if newCat != curCat {
			return true, newTag
		}
		return false, mergeTag(current, sig)
	}

	if len(sig) < minShiftTokens {
		// Not enough signal to displace the current topic.
		return false, current
	}

	if jaccard(sig, curTokens) < d.threshold {
		return true, newTag
	}
	return false, mergeTag(current, sig)
}

// makeTag renders a signature as a stored topic tag (space-joined tokens,
// capped so tags stay small).
func makeTag(sig []string) string {
	const maxTokens = 12
	if len(sig) > maxTokens {
		sig = sig[:maxTokens]
	}
	return strings.Join(sig, " ")
}

// mergeTag folds new signature tokens into the existing tag so the topic
// representation follows the conversation as it deepens.
func mergeTag(current string, sig []string) string {
	have := make(map[string]bool)
	tokens := strings.Fields(current)
	for _, t := range tokens {
		have[t] = true
	}
	for _, t := range sig {
		if !have[t] {
			tokens = append(tokens, t)
			have[t] = true
		}
	}
	sort.Strings(tokens)
	return makeTag(tokens)
}

func category(tokens []string) string {
	for _, t := range tokens {
		if c, ok := subjectLexicon[t]; ok {
			return c
		}
	}
	return ""
}

// jaccard computes set overlap between two token slices.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
