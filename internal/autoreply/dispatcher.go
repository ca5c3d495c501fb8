// Package autoreply answers inbound messages with AI-generated replies when
// the business has auto-reply turned on.
package autoreply

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wabot/internal/ai"
	"github.com/matheus3301/wabot/internal/outbox"
	"github.com/matheus3301/wabot/internal/settings"
	"github.com/matheus3301/wabot/internal/store"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one generation call.
const DefaultTimeout = 60 * time.Second

// Settings is the subset of the settings store read on every message.
type Settings interface {
	Bot() (settings.BotConfig, error)
	Credentials() (settings.Credentials, error)
}

// Enqueuer queues a reply on the outbound path.
type Enqueuer interface {
	Enqueue(ctx context.Context, out outbox.Outbound) (*store.Message, error)
}

// Config configures a Dispatcher.
type Config struct {
	Settings  Settings
	Generator ai.Generator
	Outbox    Enqueuer
	Logger    *zap.Logger
	Timeout   time.Duration
}

// Dispatcher generates one reply per accepted inbound message. Generation
// runs in the background so inbound ingestion never waits on the model.
type Dispatcher struct {
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{cfg: cfg, logger: logger.Named("autoreply"), ctx: ctx, cancel: cancel}
}

// OnInboundMessage starts a reply for msg if auto-reply is enabled. The
// configuration is read now, so a toggle applies to the very next message.
func (d *Dispatcher) OnInboundMessage(_ context.Context, msg store.Message, contact store.Contact) {
	if msg.FromMe || msg.Body == "" || d.ctx.Err() != nil {
		return
	}
	bot, err := d.cfg.Settings.Bot()
	if err != nil {
		d.logger.Warn("failed to read bot config", zap.Error(err))
		return
	}
	if !bot.AutoReplyEnabled {
		return
	}
	creds, err := d.cfg.Settings.Credentials()
	if err != nil {
		d.logger.Warn("failed to read credentials", zap.Error(err))
		return
	}

	d.wg.Go(func() {
		d.reply(msg, contact, ai.Grounding{Bot: bot}, creds)
	})
}

func (d *Dispatcher) reply(msg store.Message, contact store.Contact, g ai.Grounding, creds settings.Credentials) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.Timeout)
	defer cancel()

	log := d.logger.With(zap.String("chat_jid", msg.ChatJID), zap.String("msg_id", msg.MsgID))
	res, err := d.cfg.Generator.Generate(ctx, msg.Body, g, creds)
	if err != nil {
		log.Warn("auto-reply generation failed", zap.Error(err))
		return
	}
	if res == nil || res.Text == "" {
		log.Warn("auto-reply produced no text")
		return
	}

	out := outbox.Outbound{
		ChatJID:   msg.ChatJID,
		Text:      res.Text,
		MediaURL:  res.MediaURL,
		MediaType: res.MediaType,
		Buttons:   res.Buttons,
		Origin:    outbox.OriginAuto,
	}
	if _, err := d.cfg.Outbox.Enqueue(ctx, out); err != nil {
		log.Warn("failed to queue auto-reply", zap.Error(err))
		return
	}
	log.Info("auto-reply queued",
		zap.String("contact", contact.DisplayName()),
		zap.String("knowledge_id", res.KnowledgeID))
}

// Wait blocks until every started reply has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels in-flight generations and waits for them.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
