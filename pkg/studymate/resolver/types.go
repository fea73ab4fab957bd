// Package resolver implements the dialogue turn resolver: the deterministic
// layer between a raw inbound student message and the generative capability.
// It manages the per-student context window, detects topic shifts, classifies
// intent, decides between answering and asking a clarifying question, and
// enforces the two-field output contract.
//
// The generative capability and the profile gateway are injected as narrow
// interfaces so the whole state machine is testable with deterministic stubs.
package resolver

import (
	"context"
	"time"

	"github.com/studymate-ai/studymate/pkg/studymate/profile"
)

// MediaKind identifies the kind of inbound message content.
type MediaKind string

const (
	MediaText  MediaKind = "text"
	MediaImage MediaKind = "image"
	MediaVoice MediaKind = "voice"
)

// InboundMessage is one message from a student, immutable once created.
type InboundMessage struct {
	// SenderID is the platform identifier of the student (e.g. a JID).
	SenderID string

	// SenderName is the platform display name, used only as a fallback
	// when the profile gateway has no stored name.
	SenderName string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Kind is the media kind of the message.
	Kind MediaKind

	// Text is the raw text (or caption, for images). May be empty.
	Text string

	// MediaRef is an opaque reference to the attachment in the transport.
	MediaRef string

	// ImageData holds the downloaded image bytes for MediaImage messages.
	ImageData []byte

	// ImageMIME is the MIME type of ImageData.
	ImageMIME string
}

// Intent is one of the fixed classifier categories.
type Intent string

const (
	IntentVoiceBypass  Intent = "voice_bypass"
	IntentGreeting     Intent = "greeting"
	IntentSmallTalk    Intent = "small_talk"
	IntentDirectTask   Intent = "direct_task"
	IntentStudyQuery   Intent = "study_query"
	IntentInsufficient Intent = "insufficient"
)

// ResultType is the type field of an OutputResult.
type ResultType string

const (
	TypeAnswer        ResultType = "answer"
	TypeClarification ResultType = "clarification"
)

// OutputResult is the rigid two-field result contract. It marshals to
// exactly {"type": ..., "content": ...}.
type OutputResult struct {
	Type    ResultType `json:"type"`
	Content string     `json:"content"`
}

// Turn is one resolved request/response cycle. Turns are appended to the
// context window and never mutated afterwards.
type Turn struct {
	// ID is a unique turn identifier.
	ID string

	// Message is the inbound message that started the turn.
	Message InboundMessage

	// Intent is the resolved classifier category.
	Intent Intent

	// Output is the final formatted result.
	Output OutputResult

	// Delegated is true when the generative capability produced the content.
	Delegated bool
}

// Generator is the external generative capability. Implementations must
// honor ctx cancellation; the resolver applies its own per-call timeout.
type Generator interface {
	// Generate produces prose content for a task, given the recent
	// conversation window and the student's name.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// JudgeSufficiency decides whether a study-shaped message carries
	// enough detail to act on.
	JudgeSufficiency(ctx context.Context, text string) (bool, error)
}

// GenerateRequest carries everything the generative capability needs for
// one delegated call.
type GenerateRequest struct {
	// Task is the cleaned student request.
	Task string

	// Context is the current window in chronological order, oldest first.
	Context []Turn

	// StudentName personalizes the reply ("friend" when unknown).
	StudentName string

	// Image is an optional inline attachment for vision tasks.
	Image []byte

	// ImageMIME is the MIME type of Image.
	ImageMIME string
}

// TurnLogger persists resolved turns for audit. Failures are non-fatal.
type TurnLogger interface {
	Append(ctx context.Context, turn Turn) error
}

// ProfileGateway is the read-only student profile accessor.
type ProfileGateway interface {
	Get(ctx context.Context, studentID string) (*profile.StudentProfile, error)
}
