// Package resolver – intent.go implements the intent classifier: a fixed
// precedence rule table (voice bypass > greeting > small talk > direct task
// > study query > insufficient) plus one delegated sufficiency judgment for
// the cases rules alone cannot decide. Ties break toward insufficient:
// the assistant never fabricates missing constraints.
package resolver

import (
	"context"
	"strings"
)

// Classification is the classifier output for one message.
type Classification struct {
	// Intent is the resolved category.
	Intent Intent

	// Text is the cleaned text with any greeting prefix stripped.
	Text string

	// Greeted is true when the message opened with a salutation but
	// carried more content after it ("hi, can you help with...").
	Greeted bool
}

// SufficiencyJudge is the single delegated judgment the classifier may use.
type SufficiencyJudge interface {
	JudgeSufficiency(ctx context.Context, text string) (bool, error)
}

// Classifier maps a cleaned message and its media kind to an intent.
type Classifier struct {
	judge SufficiencyJudge
}

// NewClassifier creates a classifier. judge may be nil, in which case
// ambiguous messages resolve to IntentInsufficient.
func NewClassifier(judge SufficiencyJudge) *Classifier {
	return &Classifier{judge: judge}
}

// slangMap expands common chat shorthand before classification.
var slangMap = map[string]string{
	"pls": "please", "plz": "please", "u": "you", "ur": "your",
	"r": "are", "thx": "thanks", "ty": "thanks", "hw": "homework",
	"wat": "what", "wut": "what", "k": "ok", "im": "i am",
	"dont": "don't", "cant": "can't", "wanna": "want to",
	"gonna": "going to", "2morrow": "tomorrow", "b4": "before",
}

// CleanText normalizes a raw message: whitespace collapse and slang
// expansion. Pure transform, applied before classification.
func CleanText(raw string) string {
	fields := strings.Fields(raw)
	for i, f := range fields {
		key := strings.ToLower(strings.Trim(f, ".,!?"))
		if repl, ok := slangMap[key]; ok {
			fields[i] = repl
		}
	}
	return strings.Join(fields, " ")
}

var salutations = []string{
	"hi", "hii", "hiii", "hello", "hey", "heya", "yo", "hiya",
	"good morning", "good afternoon", "good evening", "greetings",
}

var smallTalkPhrases = []string{
	"are you there", "you there", "how are you", "how is it going",
	"thanks", "thank you", "ok", "okay", "cool", "nice", "great",
	"who are you", "what are you", "are you a bot", "what can you do",
	"good night", "bye", "goodbye", "see you", "lol", "haha",
}

// taskVerbs mark an explicit imperative.
var taskVerbs = map[string]bool{
	"summarize": true, "summarise": true, "solve": true, "explain": true,
	"translate": true, "simplify": true, "calculate": true, "compute": true,
	"define": true, "describe": true, "check": true, "read": true,
	"transcribe": true, "write": true, "prove": true, "evaluate": true,
	"factor": true, "expand": true, "convert": true, "compare": true,
	"list": true, "find": true,
}

// referenceWords point an imperative at attached or prior content.
var referenceWords = map[string]bool{
	"this": true, "that": true, "it": true, "image": true, "picture": true,
	"photo": true, "above": true, "previous": true, "last": true,
	"attached": true, "earlier": true,
}

var questionWords = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"which": true, "who": true,
}

// Classify applies the rule table in fixed precedence order. The ctx is
// only used for the delegated sufficiency judgment.
func (c *Classifier) Classify(ctx context.Context, msg InboundMessage) Classification {
	// Voice notes are always routed to the bypass, whatever the text says.
	if msg.Kind == MediaVoice {
		return Classification{Intent: IntentVoiceBypass, Text: CleanText(msg.Text)}
	}

	text := CleanText(msg.Text)
	lower := strings.ToLower(text)

	// Greeting: salutation-only, or salutation prefix with more content.
	if rest, ok := stripSalutation(lower, text); ok {
		if strings.TrimSpace(rest) == "" {
			return Classification{Intent: IntentGreeting, Text: ""}
		}
		cl := c.classifyBody(ctx, msg, strings.TrimSpace(rest))
		cl.Greeted = true
		return cl
	}

	return c.classifyBody(ctx, msg, text)
}

// classifyBody handles everything after the voice/greeting rules.
func (c *Classifier) classifyBody(ctx context.Context, msg InboundMessage, text string) Classification {
	lower := strings.ToLower(text)
	tokens := TokenSignature(lower)

	// An attached image makes the message a direct task: the content to
	// act on is right there.
	if msg.Kind == MediaImage {
		return Classification{Intent: IntentDirectTask, Text: text}
	}

	if isSmallTalk(lower, tokens) {
		return Classification{Intent: IntentSmallTalk, Text: text}
	}

	if isDirectTask(lower) {
		return Classification{Intent: IntentDirectTask, Text: text}
	}

	// Study query vs insufficient: rule floor first, judge for the middle.
	switch ruleSufficiency(lower, tokens) {
	case sufficient:
		return Classification{Intent: IntentStudyQuery, Text: text}
	case insufficient:
		return Classification{Intent: IntentInsufficient, Text: text}
	}

	if c.judge != nil {
		if ok, err := c.judge.JudgeSufficiency(ctx, text); err == nil && ok {
			return Classification{Intent: IntentStudyQuery, Text: text}
		}
	}
	return Classification{Intent: IntentInsufficient, Text: text}
}

// stripSalutation returns the text after a leading salutation and whether
// one was found. Matching is longest-first so "good morning" wins over no
// match on "good".
func stripSalutation(lower, original string) (rest string, ok bool) {
	best := ""
	for _, s := range salutations {
		if len(s) <= len(best) {
			continue
		}
		if lower == s || strings.HasPrefix(lower, s+" ") || strings.HasPrefix(lower, s+",") || strings.HasPrefix(lower, s+"!") {
			best = s
		}
	}
	if best == "" {
		return "", false
	}
	rest = strings.TrimLeft(original[len(best):], " ,!.")
	return rest, true
}

func isSmallTalk(lower string, tokens []string) bool {
	trimmed := strings.Trim(lower, " .!?")
	for _, p := range smallTalkPhrases {
		if trimmed == p {
			return true
		}
		// A small-talk opener only counts when nothing academic follows:
		// "ok solve 2x + 5 = 15" is a study query, not chatter.
		if strings.HasPrefix(trimmed, p+" ") && len(tokens) <= 4 && !carriesStudyContent(trimmed[len(p):]) {
			return true
		}
	}
	return false
}

// carriesStudyContent reports whether text still holds an actionable ask:
// digits, a task verb, or a subject keyword.
func carriesStudyContent(text string) bool {
	if strings.ContainsAny(text, "0123456789") {
		return true
	}
	for _, f := range strings.Fields(text) {
		w := strings.Trim(f, ".,!?")
		if taskVerbs[w] || subjectLexicon[w] != "" {
			return true
		}
	}
	return false
}

// isDirectTask detects an imperative that points at attached or prior
// content ("summarize this", "what does this image say").
func isDirectTask(lower string) bool {
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return false
	}
	hasRef := false
	for _, f := range fields {
		if referenceWords[strings.Trim(f, ".,!?")] {
			hasRef = true
			break
		}
	}
	if !hasRef {
		return false
	}
	if taskVerbs[strings.Trim(fields[0], ".,!?")] {
		return true
	}
	// "what does this image say": question form aimed at a reference.
	return questionWords[fields[0]] && (strings.Contains(lower, "image") || strings.Contains(lower, "picture") || strings.Contains(lower, "photo"))
}

type sufficiencyRule int

const (
	ambiguous sufficiencyRule = iota
	sufficient
	insufficient
)

// ruleSufficiency is the deterministic floor for "enough detail".
// Digits, math operators, or a reasonably specific question are enough;
// a bare ask with no operand never is. Everything else is ambiguous and
// goes to the delegated judge.
func ruleSufficiency(lower string, tokens []string) sufficiencyRule {
	if strings.ContainsAny(lower, "0123456789=+^√") {
		return sufficient
	}
	if len(tokens) == 0 {
		return insufficient
	}
	// Generic help-shaped asks: "help me with my homework", "i need help".
	if strings.Contains(lower, "help") && len(tokens) <= 2 {
		return insufficient
	}
	if len(tokens) <= 1 {
		return insufficient
	}
	if len(tokens) >= 4 {
		first := ""
		if f := strings.Fields(lower); len(f) > 0 {
			first = strings.Trim(f[0], ".,!?")
		}
		if questionWords[first] || taskVerbs[first] || category(tokens) != "" {
			return sufficient
		}
	}
	return ambiguous
}
