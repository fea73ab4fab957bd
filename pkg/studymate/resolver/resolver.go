// Package resolver – resolver.go implements the response decision engine:
// a state machine over (intent, context sufficiency) that picks answer vs
// clarification, short-circuits canned replies, and delegates everything
// generative to the injected capability.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studymate-ai/studymate/pkg/studymate/profile"
)

// CreditPolicy selects the behavior when a student's balance reaches zero.
type CreditPolicy string

const (
	// CreditWarn keeps answering; balances are refreshed by a scheduled job.
	CreditWarn CreditPolicy = "warn"
	// CreditBlock replies with a canned message instead of delegating.
	CreditBlock CreditPolicy = "block"
)

// DefaultGenTimeout bounds a single delegated generative call.
const DefaultGenTimeout = 30 * time.Second

// Config tunes the resolver.
type Config struct {
	// TopicThreshold is the similarity threshold for topic shifts.
	TopicThreshold float64 `yaml:"topic_threshold"`

	// GenTimeoutSeconds bounds each delegated generative call.
	GenTimeoutSeconds int `yaml:"gen_timeout_seconds"`

	// CreditPolicy is the zero-balance behavior ("warn" or "block").
	CreditPolicy CreditPolicy `yaml:"credit_policy"`
}

func (c Config) genTimeout() time.Duration {
	if c.GenTimeoutSeconds <= 0 {
		return DefaultGenTimeout
	}
	return time.Duration(c.GenTimeoutSeconds) * time.Second
}

// Resolver orchestrates one dialogue turn end to end.
type Resolver struct {
	store      *ContextStore
	topics     *TopicDetector
	classifier *Classifier
	gen        Generator
	profiles   ProfileGateway
	turnLog    TurnLogger
	cfg        Config
	logger     *slog.Logger
}

// New creates a resolver. profiles and turnLog may be nil: without a
// profile gateway every student is addressed as "friend"; without a turn
// log nothing is persisted beyond the in-memory window.
func New(cfg Config, gen Generator, profiles ProfileGateway, turnLog TurnLogger, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:      NewContextStore(),
		topics:     NewTopicDetector(cfg.TopicThreshold),
		classifier: NewClassifier(gen),
		gen:        gen,
		profiles:   profiles,
		turnLog:    turnLog,
		cfg:        cfg,
		logger:     logger.With("component", "resolver"),
	}
}

// Store exposes the context store for the idle-session sweep.
func (r *Resolver) Store() *ContextStore { return r.store }

// Resolve processes one inbound message start to finish and returns the
// completed turn. Turns for the same student must be serialized by the
// caller; different students are fully independent.
func (r *Resolver) Resolve(ctx context.Context, msg InboundMessage) Turn {
	prof, name := r.lookupStudent(ctx, msg)

	// Voice notes bypass everything: fixed templated reply, no context
	// mutation beyond logging the turn itself.
	if msg.Kind == MediaVoice {
		out := OutputResult{
			Type:    TypeAnswer,
			Content: fmt.Sprintf("No worries, %s! What can I help you study next?", name),
		}
		return r.finish(ctx, msg, IntentVoiceBypass, out, false)
	}

	clean := CleanText(msg.Text)

	// Topic shift check runs before any other processing so the window
	// never mixes topics.
	shift, tag := r.topics.Detect(clean, r.store.Topic(msg.SenderID))
	if shift {
		r.logger.Debug("topic shift", "student", msg.SenderID, "new_topic", tag)
		r.store.Reset(msg.SenderID)
	}
	r.store.SetTopic(msg.SenderID, tag)

	cl := r.classifier.Classify(ctx, msg)

	// Account gates apply only to turns that would reach the generative
	// capability; greetings and small talk stay free.
	if delegates(cl.Intent) && prof != nil {
		if gate := r.accountGate(prof, name); gate != nil {
			return r.finish(ctx, msg, cl.Intent, *gate, false)
		}
	}

	out, delegated := r.decide(ctx, msg, cl, name)

	if cl.Greeted {
		out.Content = fmt.Sprintf("Hi %s! %s", name, out.Content)
	}

	return r.finish(ctx, msg, cl.Intent, out, delegated)
}

// decide maps a classification to an output, delegating where the state
// machine calls for it.
func (r *Resolver) decide(ctx context.Context, msg InboundMessage, cl Classification, name string) (OutputResult, bool) {
	switch cl.Intent {
	case IntentGreeting:
		return OutputResult{
			Type:    TypeAnswer,
			Content: fmt.Sprintf("Hi %s! How can I help you study today?", name),
		}, false

	case IntentSmallTalk:
		return OutputResult{Type: TypeAnswer, Content: smallTalkReply(cl.Text, name)}, false

	case IntentDirectTask:
		// A direct task needs a resolvable target: an attachment or
		// prior turns to refer back to.
		if len(msg.ImageData) == 0 && r.store.Len(msg.SenderID) == 0 {
			return r.clarify(ctx, msg, cl, name)
		}
		return r.delegate(ctx, msg, cl, name)

	case IntentStudyQuery:
		return r.delegate(ctx, msg, cl, name)

	default: // IntentInsufficient
		return r.clarify(ctx, msg, cl, name)
	}
}

// delegate calls the generative capability with the task and the current
// window, retrying once on a transient timeout. Failures degrade to an
// apologetic in-persona answer, never a raw error.
func (r *Resolver) delegate(ctx context.Context, msg InboundMessage, cl Classification, name string) (OutputResult, bool) {
	req := GenerateRequest{
		Task:        cl.Text,
		Context:     r.store.Peek(msg.SenderID, WindowSize),
		StudentName: name,
		Image:       msg.ImageData,
		ImageMIME:   msg.ImageMIME,
	}

	content, err := r.generateWithRetry(ctx, req)
	if err != nil {
		r.logger.Warn("generation failed", "student", msg.SenderID, "err", err)
		return OutputResult{
			Type:    TypeAnswer,
			Content: fmt.Sprintf("Sorry, %s, I couldn't work that out just now. Please send it again in a moment.", name),
		}, false
	}
	return OutputResult{Type: TypeAnswer, Content: content}, true
}

// generateWithRetry applies the per-call timeout and at most one immediate
// retry for transient timeouts. No other retries happen inside the core.
func (r *Resolver) generateWithRetry(ctx context.Context, req GenerateRequest) (string, error) {
	attempt := func() (string, error) {
		gctx, cancel := context.WithTimeout(ctx, r.cfg.genTimeout())
		defer cancel()
		return r.gen.Generate(gctx, req)
	}

	content, err := attempt()
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		content, err = attempt()
	}
	return content, err
}

// clarify emits exactly one focused clarification question. If the same
// question was already asked in the immediately preceding turn, re-asking
// would loop; escalate to a best-effort direct attempt instead.
func (r *Resolver) clarify(ctx context.Context, msg InboundMessage, cl Classification, name string) (OutputResult, bool) {
	question := clarificationQuestion(cl)

	if last, ok := r.store.LastOutput(msg.SenderID); ok &&
		last.Type == TypeClarification && sameQuestion(last.Content, question) {
		r.logger.Debug("clarification loop, escalating to direct attempt", "student", msg.SenderID)
		return r.delegate(ctx, msg, cl, name)
	}

	return OutputResult{Type: TypeClarification, Content: question}, false
}

// clarificationQuestion picks the single most blocking missing detail.
func clarificationQuestion(cl Classification) string {
	if cl.Intent == IntentDirectTask {
		return "What should I look at? Send the problem text or the image you mean."
	}
	tokens := TokenSignature(cl.Text)
	if c := category(tokens); c != "" {
		return fmt.Sprintf("Happy to help with %s! Which exact problem or question should we work on?", c)
	}
	return "Which subject is this for, and what's the exact problem or question?"
}

// sameQuestion compares clarification texts ignoring case and whitespace.
func sameQuestion(a, b string) bool {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(a) == norm(b)
}

// accountGate returns a canned output when account status or credit policy
// blocks delegation, or nil to proceed.
func (r *Resolver) accountGate(prof *profile.StudentProfile, name string) *OutputResult {
	if prof.Status == profile.StatusSuspended {
		return &OutputResult{
			Type:    TypeAnswer,
			Content: fmt.Sprintf("Your account is paused right now, %s. Please get in touch with support so we can keep studying together.", name),
		}
	}
	if r.cfg.CreditPolicy == CreditBlock && prof.Credits <= 0 {
		return &OutputResult{
			Type:    TypeAnswer,
			Content: fmt.Sprintf("You've used up today's study credits, %s. They refresh overnight, see you then!", name),
		}
	}
	return nil
}

// delegates reports whether an intent reaches the generative capability.
func delegates(intent Intent) bool {
	return intent == IntentDirectTask || intent == IntentStudyQuery || intent == IntentInsufficient
}

// smallTalkReply keeps conversational messages warm without touching the
// full generative reasoning path.
func smallTalkReply(text, name string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "thank"):
		return fmt.Sprintf("Anytime, %s! Ping me whenever you're stuck.", name)
	case strings.Contains(lower, "there"):
		return fmt.Sprintf("I'm here, %s! What are we studying?", name)
	case strings.Contains(lower, "bye") || strings.Contains(lower, "good night"):
		return fmt.Sprintf("See you soon, %s! Good luck with your studies.", name)
	default:
		return fmt.Sprintf("I'm doing great, %s, and ready to study when you are. What's on your plate?", name)
	}
}

// finish formats, records, and returns the completed turn. A formatter
// contract violation is fatal to the turn: it ships the safe fallback.
func (r *Resolver) finish(ctx context.Context, msg InboundMessage, intent Intent, out OutputResult, delegated bool) Turn {
	final, err := Finalize(out)
	if err != nil {
		r.logger.Error("output contract violation", "student", msg.SenderID, "err", err)
		final = SafeFallback("friend")
	}

	turn := Turn{
		ID:        uuid.NewString(),
		Message:   msg,
		Intent:    intent,
		Output:    final,
		Delegated: delegated,
	}
	r.store.Push(msg.SenderID, turn)

	if r.turnLog != nil {
		if err := r.turnLog.Append(ctx, turn); err != nil {
			r.logger.Warn("turn log append failed", "err", err)
		}
	}
	return turn
}

// lookupStudent resolves the profile and display name. Gateway failures
// are non-fatal: the flow continues unpersonalized.
func (r *Resolver) lookupStudent(ctx context.Context, msg InboundMessage) (*profile.StudentProfile, string) {
	if r.profiles == nil {
		return nil, fallbackName(msg)
	}
	prof, err := r.profiles.Get(ctx, msg.SenderID)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			r.logger.Warn("profile lookup failed", "student", msg.SenderID, "err", err)
		}
		return nil, fallbackName(msg)
	}
	if prof.DisplayName != "" {
		return prof, prof.DisplayName
	}
	return prof, fallbackName(msg)
}

func fallbackName(msg InboundMessage) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return "friend"
}
