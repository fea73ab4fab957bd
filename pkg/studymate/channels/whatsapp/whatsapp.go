// Package whatsapp implements the WhatsApp channel for StudyMate using
// whatsmeow, a native Go WhatsApp Web API library.
//
// Features:
//   - QR code login with persistent session (SQLite)
//   - Send/receive text, images, and voice notes
//   - Typing indicators and read receipts
//   - Media download with encryption
//   - Automatic reconnection with backoff
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studymate-ai/studymate/pkg/studymate/channels"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for session store.
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// DatabasePath is the SQLite database file for session storage. The
	// whatsmeow_* tables can share the central studymate.db.
	DatabasePath string `yaml:"database_path"`

	// AutoRead marks incoming messages as read.
	AutoRead bool `yaml:"auto_read"`

	// SendTyping sends typing indicators while processing.
	SendTyping bool `yaml:"send_typing"`

	// MaxMediaSizeMB is the maximum media file size to download.
	MaxMediaSizeMB int `yaml:"max_media_size_mb"`

	// ReconnectBackoff is the initial backoff for reconnection.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// MaxReconnectAttempts caps reconnection attempts (0 = unlimited).
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:         "./data/studymate.db",
		AutoRead:             true,
		SendTyping:           true,
		MaxMediaSizeMB:       16,
		ReconnectBackoff:     5 * time.Second,
		MaxReconnectAttempts: 0,
	}
}

// WhatsApp implements channels.Channel, channels.MediaChannel and
// channels.PresenceChannel over whatsmeow.
type WhatsApp struct {
	cfg    Config
	logger *slog.Logger

	client   *whatsmeow.Client
	messages chan *channels.IncomingMessage

	connected         atomic.Bool
	messagesClosed    atomic.Bool
	errorCount        atomic.Int64
	reconnectAttempts atomic.Int64
	lastMsg           atomic.Value // time.Time

	stateMu sync.Mutex
	state   ConnectionState

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp channel.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	return &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 128),
		state:    StateDisconnected,
	}
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect establishes the WhatsApp Web connection via whatsmeow. If no
// session exists, the QR login flow runs in the background so startup is
// non-blocking; the code is printed to the log for scanning.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.setState(StateConnecting)

	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", w.cfg.DatabasePath),
		waLog.Noop)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("StudyMate", [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		// First login: QR flow in the background.
		w.setState(StateWaitingQR)
		w.logger.Info("whatsapp: no existing session, QR scan required")
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("whatsapp: QR login pending", "error", err)
			}
		}()
		return nil
	}

	if err := w.client.Connect(); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("connecting: %w", err)
	}

	w.connected.Store(true)
	w.logger.Info("whatsapp: connected (existing session)", "jid", w.clientJID())
	return nil
}

// Disconnect gracefully closes the WhatsApp connection.
func (w *WhatsApp) Disconnect() error {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}
	w.logger.Info("whatsapp: disconnected")
	return nil
}

// Send sends a text message to the specified JID.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	waMsg := buildTextMessage(msg.Content, msg.ReplyTo)
	if _, err := w.client.SendMessage(ctx, jid, waMsg); err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive returns the incoming messages channel.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected returns true if WhatsApp is connected.
func (w *WhatsApp) IsConnected() bool {
	return w.connected.Load()
}

// Health returns the channel health status.
func (w *WhatsApp) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected:  w.connected.Load(),
		ErrorCount: int(w.errorCount.Load()),
		Details:    make(map[string]any),
	}
	if t, ok := w.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	h.Details["state"] = string(w.getState())
	if w.client != nil && w.client.Store.ID != nil {
		h.Details["jid"] = w.client.Store.ID.String()
	}
	h.Details["reconnect_attempts"] = w.reconnectAttempts.Load()
	return h
}

// DownloadMedia downloads and decrypts media from an incoming message.
func (w *WhatsApp) DownloadMedia(ctx context.Context, msg *channels.IncomingMessage) ([]byte, string, error) {
	mi := msg.Media
	if mi == nil {
		return nil, "", fmt.Errorf("message has no media")
	}
	if w.cfg.MaxMediaSizeMB > 0 && mi.FileSize > uint64(w.cfg.MaxMediaSizeMB)<<20 {
		return nil, "", fmt.Errorf("%w: media too large (%d bytes)", channels.ErrMediaDownloadFailed, mi.FileSize)
	}

	var mediaType whatsmeow.MediaType
	switch mi.Type {
	case channels.MessageImage:
		mediaType = whatsmeow.MediaImage
	case channels.MessageAudio:
		mediaType = whatsmeow.MediaAudio
	default:
		return nil, "", fmt.Errorf("%w: unsupported media type %q", channels.ErrMediaDownloadFailed, mi.Type)
	}

	data, err := w.client.DownloadMediaWithPath(ctx,
		mi.DirectPath, mi.FileEncSHA256, mi.FileSHA256, mi.MediaKey,
		int(mi.FileSize), mediaType, "")
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", channels.ErrMediaDownloadFailed, err)
	}
	return data, mi.MimeType, nil
}

// SendTyping sends a typing indicator.
func (w *WhatsApp) SendTyping(ctx context.Context, to string) error {
	if !w.connected.Load() || !w.cfg.SendTyping {
		return nil
	}
	jid, err := parseJID(to)
	if err != nil {
		return err
	}
	return w.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// MarkRead marks messages as read.
func (w *WhatsApp) MarkRead(ctx context.Context, chatID string, messageIDs []string) error {
	if !w.connected.Load() {
		return nil
	}
	jid, err := parseJID(chatID)
	if err != nil {
		return err
	}
	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	return w.client.MarkRead(ctx, ids, time.Now(), jid, jid)
}

// ---------- Login / reconnect ----------

func (w *WhatsApp) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR runs the QR login flow, logging each code for scanning.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	w.setState(StateWaitingQR)
	for {
		select {
		case <-ctx.Done():
			w.setState(StateDisconnected)
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}
			switch evt.Event {
			case "code":
				w.logger.Info("whatsapp: scan this code with WhatsApp > Linked Devices", "qr", evt.Code)
			case "success":
				w.connected.Store(true)
				w.reconnectAttempts.Store(0)
				w.setState(StateConnected)
				w.logger.Info("whatsapp: login successful")
				return nil
			case "timeout":
				w.setState(StateDisconnected)
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					w.setState(StateDisconnected)
					return fmt.Errorf("QR login error: %v", evt.Error)
				}
			}
		}
	}
}

// attemptReconnect retries the connection with linear backoff.
func (w *WhatsApp) attemptReconnect() {
	w.setState(StateReconnecting)

	for {
		attempts := w.reconnectAttempts.Add(1)
		if w.cfg.MaxReconnectAttempts > 0 && attempts > int64(w.cfg.MaxReconnectAttempts) {
			w.logger.Error("whatsapp: reconnect attempts exhausted", "attempts", attempts-1)
			w.setState(StateDisconnected)
			return
		}

		backoff := w.cfg.ReconnectBackoff * time.Duration(attempts)
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(backoff):
		}

		w.logger.Info("whatsapp: reconnecting...", "attempt", attempts)
		if err := w.client.Connect(); err != nil {
			w.logger.Warn("whatsapp: reconnect attempt failed", "attempt", attempts, "error", err)
			continue
		}
		// The Connected event updates state on confirmation.
		return
	}
}

// emitMessage pushes a message into the channel buffer, dropping when full
// rather than blocking the whatsmeow event loop.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}
	select {
	case w.messages <- msg:
		w.lastMsg.Store(time.Now())
	case <-w.ctx.Done():
	default:
		w.logger.Warn("whatsapp: message buffer full, dropping message", "from", msg.From)
	}
}

func (w *WhatsApp) setState(s ConnectionState) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

func (w *WhatsApp) getState() ConnectionState {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state
}

func (w *WhatsApp) clientJID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.String()
	}
	return ""
}

// ---------- Helpers ----------

// buildTextMessage wraps text in a waE2E message, quoting replyTo when set.
func buildTextMessage(content, replyTo string) *waE2E.Message {
	if replyTo == "" {
		return &waE2E.Message{Conversation: proto.String(content)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(content),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID: proto.String(replyTo),
			},
		},
	}
}

// parseJID converts a string JID to types.JID. Accepts "5511999999999" or
// "5511999999999@s.whatsapp.net".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
