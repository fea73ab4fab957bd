// assistant.go is the daemon core: it owns the database, the resolver, the
// channel manager, and the scheduler, and pumps messages between them.
package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/studymate-ai/studymate/pkg/studymate/channels"
	"github.com/studymate-ai/studymate/pkg/studymate/channels/whatsapp"
	"github.com/studymate-ai/studymate/pkg/studymate/gemini"
	"github.com/studymate-ai/studymate/pkg/studymate/profile"
	"github.com/studymate-ai/studymate/pkg/studymate/resolver"
	"github.com/studymate-ai/studymate/pkg/studymate/scheduler"
	"github.com/studymate-ai/studymate/pkg/studymate/store"
)

// workerQueueSize bounds each per-student message queue.
const workerQueueSize = 16

// Assistant is the StudyMate daemon.
type Assistant struct {
	cfg    Config
	logger *slog.Logger

	db       *sql.DB
	profiles *profile.Store
	turnLog  *store.TurnLog
	resolver *resolver.Resolver
	manager  *channels.Manager
	sched    *scheduler.Scheduler

	extra []channels.Channel // channels registered before Run (console)

	// Per-student workers serialize turns for the same student while
	// different students resolve concurrently.
	workersMu sync.Mutex
	workers   map[string]chan *channels.IncomingMessage
	workerWg  sync.WaitGroup
}

// New creates an assistant from config. Nothing connects until Run.
func New(cfg Config, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = NewLogger(cfg.Logging)
	}
	return &Assistant{
		cfg:     cfg,
		logger:  logger,
		workers: make(map[string]chan *channels.IncomingMessage),
	}
}

// RegisterChannel adds an extra channel (the console REPL) before Run.
func (a *Assistant) RegisterChannel(ch channels.Channel) {
	a.extra = append(a.extra, ch)
}

// Run starts the daemon and blocks until ctx is canceled.
func (a *Assistant) Run(ctx context.Context) error {
	db, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	defer db.Close()

	a.profiles = profile.NewStore(db, a.logger)
	a.turnLog = store.NewTurnLog(db)

	apiCfg := a.cfg.API
	apiCfg.APIKey = ResolveAPIKey(apiCfg.APIKey)
	if apiCfg.APIKey == "" {
		return fmt.Errorf("no Gemini API key configured; run `studymate setup` or set GEMINI_API_KEY")
	}
	gen := gemini.New(apiCfg, a.logger)

	resCfg := a.cfg.Resolver
	if a.cfg.Credits.ExhaustedPolicy != "" {
		resCfg.CreditPolicy = resolver.CreditPolicy(a.cfg.Credits.ExhaustedPolicy)
	}
	a.resolver = resolver.New(resCfg, gen, a.profiles, a.turnLog, a.logger)

	a.manager = channels.NewManager(a.logger)
	if a.cfg.Channels.WhatsApp.Enabled {
		wa := whatsapp.New(a.cfg.Channels.WhatsApp.Config, a.logger)
		if err := a.manager.Register(wa); err != nil {
			return err
		}
	}
	for _, ch := range a.extra {
		if err := a.manager.Register(ch); err != nil {
			return err
		}
	}

	if err := a.startScheduler(ctx); err != nil {
		return err
	}
	defer a.sched.Stop()

	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}
	a.logger.Info("studymate running")

	a.dispatch(ctx)

	a.manager.Stop()
	a.workerWg.Wait()
	a.logger.Info("studymate stopped")
	return nil
}

// startScheduler registers the credit refresh and idle-session sweep jobs.
func (a *Assistant) startScheduler(ctx context.Context) error {
	a.sched = scheduler.New(a.logger)

	if a.cfg.Credits.Daily > 0 {
		err := a.sched.Add(scheduler.Job{
			Name: "credit-refresh",
			Spec: "@daily",
			Run: func() error {
				n, err := a.profiles.RefreshAll(ctx, a.cfg.Credits.Daily)
				if err == nil {
					a.logger.Info("credits refreshed", "students", n)
				}
				return err
			},
		})
		if err != nil {
			return err
		}
	}

	if idle := a.cfg.Session.IdleTimeout(); idle > 0 {
		err := a.sched.Add(scheduler.Job{
			Name: "idle-session-sweep",
			Spec: fmt.Sprintf("@every %s", a.cfg.Session.SweepInterval()),
			Run: func() error {
				if n := a.resolver.Store().ResetIdle(idle); n > 0 {
					a.logger.Debug("idle sessions cleared", "count", n)
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	a.sched.Start()
	return nil
}

// dispatch fans incoming messages out to per-student workers until ctx is
// canceled or the aggregated stream closes.
func (a *Assistant) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.manager.Messages():
			if !ok {
				return
			}
			a.enqueue(ctx, msg)
		}
	}
}

// enqueue routes a message to its student's worker, spawning one on first
// contact. A full queue drops the message rather than stalling every student.
func (a *Assistant) enqueue(ctx context.Context, msg *channels.IncomingMessage) {
	a.workersMu.Lock()
	queue, ok := a.workers[msg.From]
	if !ok {
		queue = make(chan *channels.IncomingMessage, workerQueueSize)
		a.workers[msg.From] = queue
		a.workerWg.Add(1)
		go a.worker(ctx, queue)
	}
	a.workersMu.Unlock()

	select {
	case queue <- msg:
	default:
		a.logger.Warn("student queue full, dropping message", "student", msg.From)
	}
}

func (a *Assistant) worker(ctx context.Context, queue <-chan *channels.IncomingMessage) {
	defer a.workerWg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			a.process(ctx, msg)
		}
	}
}

// process handles one message end to end: profile registration, media
// download, resolution, credit debit, and the reply.
func (a *Assistant) process(ctx context.Context, msg *channels.IncomingMessage) {
	ch, _ := a.manager.Get(msg.Channel)

	if pc, ok := ch.(channels.PresenceChannel); ok {
		if err := pc.SendTyping(ctx, msg.ChatID); err != nil {
			a.logger.Debug("typing indicator failed", "error", err)
		}
	}

	// First contact registers the student with the daily allowance; later
	// contacts just keep the push name fresh.
	if err := a.profiles.Upsert(ctx, msg.From, msg.FromName, a.cfg.Credits.Daily); err != nil {
		a.logger.Warn("profile upsert failed", "student", msg.From, "error", err)
	}

	inbound, ok := a.toInbound(ctx, ch, msg)
	if !ok {
		return
	}

	turn := a.resolver.Resolve(ctx, inbound)

	if turn.Delegated {
		if err := a.profiles.Debit(ctx, msg.From); err != nil {
			a.logger.Warn("credit debit failed", "student", msg.From, "error", err)
		}
	}

	reply := &channels.OutgoingMessage{Content: turn.Output.Content, ReplyTo: msg.ID}
	if err := a.manager.Send(ctx, msg.Channel, msg.ChatID, reply); err != nil {
		a.logger.Error("reply send failed", "student", msg.From, "channel", msg.Channel, "error", err)
	}
}

// toInbound converts a channel message to the resolver's inbound form,
// downloading image bytes when the channel supports it. Unsupported media
// kinds are dropped.
func (a *Assistant) toInbound(ctx context.Context, ch channels.Channel, msg *channels.IncomingMessage) (resolver.InboundMessage, bool) {
	inbound := resolver.InboundMessage{
		SenderID:   msg.From,
		SenderName: msg.FromName,
		Timestamp:  msg.Timestamp,
		Text:       msg.Content,
	}

	switch msg.Type {
	case channels.MessageText:
		inbound.Kind = resolver.MediaText

	case channels.MessageAudio:
		if !msg.IsVoiceNote {
			a.logger.Debug("non-voice audio ignored", "student", msg.From)
			return inbound, false
		}
		inbound.Kind = resolver.MediaVoice

	case channels.MessageImage:
		inbound.Kind = resolver.MediaImage
		inbound.MediaRef = msg.ID
		if mc, ok := ch.(channels.MediaChannel); ok {
			data, mimeType, err := mc.DownloadMedia(ctx, msg)
			if err != nil {
				a.logger.Warn("image download failed", "student", msg.From, "error", err)
			} else {
				inbound.ImageData = data
				inbound.ImageMIME = mimeType
			}
		}

	default:
		a.logger.Debug("unsupported message type ignored", "student", msg.From, "type", msg.Type)
		return inbound, false
	}

	return inbound, true
}

// ChannelHealth reports the health of every registered channel.
func (a *Assistant) ChannelHealth() map[string]channels.HealthStatus {
	out := make(map[string]channels.HealthStatus)
	if a.manager == nil {
		return out
	}
	names := []string{"whatsapp", "console"}
	for _, name := range names {
		if ch, ok := a.manager.Get(name); ok {
			out[name] = ch.Health()
		}
	}
	return out
}
