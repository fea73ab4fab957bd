// Package console implements a local REPL channel for testing the dialogue
// core without a WhatsApp account. Lines typed at the prompt arrive as text
// messages from a fixed local student; replies print to stdout.
//
// Slash commands simulate non-text input:
//
//	/voice            send a simulated voice note
//	/image <path>     send the image file at <path>
//	/exit             quit the REPL
package console

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/studymate-ai/studymate/pkg/studymate/channels"
)

// LocalStudentID identifies the console user to the dialogue core.
const LocalStudentID = "console:local"

// Console implements channels.Channel and channels.MediaChannel over a
// readline prompt.
type Console struct {
	studentName string
	messages    chan *channels.IncomingMessage
	rl          *readline.Instance

	connected atomic.Bool
	closed    atomic.Bool

	// pending holds image bytes keyed by message ID until DownloadMedia
	// picks them up.
	pendingMu sync.Mutex
	pending   map[string][]byte

	cancel context.CancelFunc
}

// New creates a console channel. studentName is shown in greetings.
func New(studentName string) *Console {
	if studentName == "" {
		studentName = "you"
	}
	return &Console{
		studentName: studentName,
		messages:    make(chan *channels.IncomingMessage, 16),
		pending:     make(map[string][]byte),
	}
}

// Name returns "console".
func (c *Console) Name() string { return "console" }

// Connect opens the readline prompt and starts the input loop.
func (c *Console) Connect(ctx context.Context) error {
	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("opening readline: %w", err)
	}
	c.rl = rl

	ctx, c.cancel = context.WithCancel(ctx)
	c.connected.Store(true)

	fmt.Println("StudyMate console. Type a message, /voice, /image <path>, or /exit.")
	go c.readLoop(ctx)
	return nil
}

// Disconnect closes the prompt and the message stream.
func (c *Console) Disconnect() error {
	c.connected.Store(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.rl != nil {
		c.rl.Close()
	}
	if c.closed.CompareAndSwap(false, true) {
		close(c.messages)
	}
	return nil
}

// Send prints the reply to stdout.
func (c *Console) Send(_ context.Context, _ string, msg *channels.OutgoingMessage) error {
	if !c.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	fmt.Printf("\nstudymate> %s\n\n", msg.Content)
	return nil
}

// Receive returns the incoming message stream.
func (c *Console) Receive() <-chan *channels.IncomingMessage {
	return c.messages
}

// IsConnected reports whether the REPL is running.
func (c *Console) IsConnected() bool { return c.connected.Load() }

// Health returns the channel health status.
func (c *Console) Health() channels.HealthStatus {
	return channels.HealthStatus{Connected: c.connected.Load()}
}

// DownloadMedia returns the bytes staged by a /image command.
func (c *Console) DownloadMedia(_ context.Context, msg *channels.IncomingMessage) ([]byte, string, error) {
	c.pendingMu.Lock()
	data, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.pendingMu.Unlock()
	if !ok {
		return nil, "", channels.ErrMediaDownloadFailed
	}
	mimeType := ""
	if msg.Media != nil {
		mimeType = msg.Media.MimeType
	}
	return data, mimeType, nil
}

func (c *Console) readLoop(ctx context.Context) {
	for {
		line, err := c.rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			c.emit(ctx, nil)
			_ = c.Disconnect()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == "/exit" || line == "/quit":
			_ = c.Disconnect()
			return

		case line == "/voice":
			c.emit(ctx, &channels.IncomingMessage{
				ID:          uuid.NewString(),
				Channel:     "console",
				From:        LocalStudentID,
				FromName:    c.studentName,
				ChatID:      LocalStudentID,
				Type:        channels.MessageAudio,
				IsVoiceNote: true,
				Timestamp:   time.Now(),
			})

		case strings.HasPrefix(line, "/image"):
			c.emitImage(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/image")))

		default:
			c.emit(ctx, &channels.IncomingMessage{
				ID:        uuid.NewString(),
				Channel:   "console",
				From:      LocalStudentID,
				FromName:  c.studentName,
				ChatID:    LocalStudentID,
				Type:      channels.MessageText,
				Content:   line,
				Timestamp: time.Now(),
			})
		}
	}
}

func (c *Console) emitImage(ctx context.Context, args string) {
	path := args
	caption := ""
	if i := strings.IndexByte(args, ' '); i > 0 {
		path, caption = args[:i], strings.TrimSpace(args[i+1:])
	}
	if path == "" {
		fmt.Println("usage: /image <path> [caption]")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("cannot read %s: %v\n", path, err)
		return
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	id := uuid.NewString()
	c.pendingMu.Lock()
	c.pending[id] = data
	c.pendingMu.Unlock()
	c.emit(ctx, &channels.IncomingMessage{
		ID:        id,
		Channel:   "console",
		From:      LocalStudentID,
		FromName:  c.studentName,
		ChatID:    LocalStudentID,
		Type:      channels.MessageImage,
		Content:   caption,
		Timestamp: time.Now(),
		Media: &channels.MediaInfo{
			Type:     channels.MessageImage,
			MimeType: mimeType,
			FileSize: uint64(len(data)),
			Caption:  caption,
		},
	})
}

func (c *Console) emit(ctx context.Context, msg *channels.IncomingMessage) {
	if msg == nil || c.closed.Load() {
		return
	}
	select {
	case c.messages <- msg:
	case <-ctx.Done():
	}
}
