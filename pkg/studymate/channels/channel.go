// Package channels defines the interfaces and types for StudyMate
// communication channels. Each channel (WhatsApp, the local console REPL)
// implements the Channel interface to receive and send messages in a
// unified way; the dialogue core never touches platform wire formats.
package channels

import (
	"context"
	"fmt"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageAudio MessageType = "audio"
	MessageOther MessageType = "other"
)

// Channel is the interface every communication channel must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the specified recipient.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// MediaChannel extends Channel with media download capability.
type MediaChannel interface {
	Channel

	// DownloadMedia downloads media from an incoming message.
	// Returns the raw bytes and MIME type.
	DownloadMedia(ctx context.Context, msg *IncomingMessage) ([]byte, string, error)
}

// PresenceChannel extends Channel with typing indicators.
type PresenceChannel interface {
	Channel

	// SendTyping sends a "typing..." indicator to the recipient.
	SendTyping(ctx context.Context, to string) error
}

// IncomingMessage represents a message received from any channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "whatsapp").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// ChatID is the conversation identifier to reply to.
	ChatID string

	// Type is the message content type.
	Type MessageType

	// IsVoiceNote marks an audio message recorded as a push-to-talk note.
	IsVoiceNote bool

	// Content is the text content (or caption) of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Media contains media attachment details (if any).
	Media *MediaInfo
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// MediaInfo describes media attached to an incoming message. The
// encryption fields are WhatsApp-specific and opaque to everything else.
type MediaInfo struct {
	Type          MessageType
	MimeType      string
	FileSize      uint64
	Caption       string
	URL           string
	DirectPath    string
	MediaKey      []byte
	FileSHA256    []byte
	FileEncSHA256 []byte
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
	Details       map[string]any
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrMediaDownloadFailed = fmt.Errorf("failed to download media")
)
