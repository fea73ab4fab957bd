// events.go maps whatsmeow events into channel-neutral messages.
package whatsapp

import (
	"context"
	"time"

	"github.com/studymate-ai/studymate/pkg/studymate/channels"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ConnectionState tracks the WhatsApp connection lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateWaitingQR    ConnectionState = "waiting_qr"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// handleEvent dispatches whatsmeow events.
func (w *WhatsApp) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Message:
		w.handleMessage(e)

	case *events.Connected:
		w.connected.Store(true)
		w.reconnectAttempts.Store(0)
		w.setState(StateConnected)
		w.logger.Info("whatsapp: connection established")

	case *events.Disconnected:
		w.connected.Store(false)
		w.logger.Warn("whatsapp: connection lost")
		// whatsmeow auto-reconnects; our backoff loop only takes over if
		// that is disabled.
		if !w.client.EnableAutoReconnect {
			go w.attemptReconnect()
		}

	case *events.LoggedOut:
		w.connected.Store(false)
		w.setState(StateDisconnected)
		w.logger.Error("whatsapp: logged out from phone, session removed; re-run setup to scan a new QR code")

	case *events.StreamReplaced:
		w.connected.Store(false)
		w.setState(StateDisconnected)
		w.logger.Error("whatsapp: stream replaced by another client")
	}
}

// handleMessage converts an incoming WhatsApp message. Group chats and own
// messages are ignored; StudyMate is a one-on-one tutor.
func (w *WhatsApp) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      w.canonicalSender(evt.Info.Sender),
		FromName:  evt.Info.PushName,
		ChatID:    evt.Info.Chat.String(),
		Timestamp: evt.Info.Timestamp,
	}

	switch {
	case evt.Message.GetConversation() != "":
		msg.Type = channels.MessageText
		msg.Content = evt.Message.GetConversation()

	case evt.Message.GetExtendedTextMessage() != nil:
		msg.Type = channels.MessageText
		msg.Content = evt.Message.GetExtendedTextMessage().GetText()

	case evt.Message.GetImageMessage() != nil:
		img := evt.Message.GetImageMessage()
		msg.Type = channels.MessageImage
		msg.Content = img.GetCaption()
		msg.Media = mediaInfoFromImage(img)

	case evt.Message.GetAudioMessage() != nil:
		audio := evt.Message.GetAudioMessage()
		msg.Type = channels.MessageAudio
		msg.IsVoiceNote = audio.GetPTT()
		msg.Media = mediaInfoFromAudio(audio)

	default:
		msg.Type = channels.MessageOther
	}

	if w.cfg.AutoRead {
		go func() {
			ctx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
			defer cancel()
			if err := w.MarkRead(ctx, msg.ChatID, []string{msg.ID}); err != nil {
				w.logger.Debug("whatsapp: mark read failed", "error", err)
			}
		}()
	}

	w.emitMessage(msg)
}

// canonicalSender resolves LID senders to the phone-number JID so a student
// keeps one identity (and one context window) across both address forms.
func (w *WhatsApp) canonicalSender(sender types.JID) string {
	if sender.Server == types.HiddenUserServer {
		if pn, err := w.client.Store.GetAltJID(w.ctx, sender); err == nil && !pn.IsEmpty() {
			return pn.ToNonAD().String()
		}
	}
	return sender.ToNonAD().String()
}

func mediaInfoFromImage(img *waE2E.ImageMessage) *channels.MediaInfo {
	return &channels.MediaInfo{
		Type:          channels.MessageImage,
		MimeType:      img.GetMimetype(),
		FileSize:      img.GetFileLength(),
		Caption:       img.GetCaption(),
		URL:           img.GetURL(),
		DirectPath:    img.GetDirectPath(),
		MediaKey:      img.GetMediaKey(),
		FileSHA256:    img.GetFileSHA256(),
		FileEncSHA256: img.GetFileEncSHA256(),
	}
}

func mediaInfoFromAudio(audio *waE2E.AudioMessage) *channels.MediaInfo {
	return &channels.MediaInfo{
		Type:          channels.MessageAudio,
		MimeType:      audio.GetMimetype(),
		FileSize:      audio.GetFileLength(),
		URL:           audio.GetURL(),
		DirectPath:    audio.GetDirectPath(),
		MediaKey:      audio.GetMediaKey(),
		FileSHA256:    audio.GetFileSHA256(),
		FileEncSHA256: audio.GetFileEncSHA256(),
	}
}
