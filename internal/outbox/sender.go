// Package outbox is the single outbound path: operator sends and auto-replies
// are queued here, shown in the conversation at once, and drained to the
// active transport in order.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/transport"
	"go.uber.org/zap"
)

// Origins of an outbound message.
const (
	OriginManual = "manual"
	OriginAuto   = "auto"
)

const (
	drainInterval = 500 * time.Millisecond
	previewLen    = 100
)

var (
	ErrEmptyText     = errors.New("message text is empty")
	ErrInvalidTarget = errors.New("target is not a valid contact id or phone number")
)

// Deliverer hands one message to the backend.
type Deliverer interface {
	Send(ctx context.Context, msg transport.Outbound) (serverMsgID string, err error)
}

// TxObserver records delivery progress.
type TxObserver interface {
	Observe(id, status, message string)
}

// Outbound is a message an operator or the auto-reply dispatcher wants sent.
type Outbound struct {
	ChatJID   string
	Text      string
	MediaURL  string
	MediaType string
	Buttons   []string
	Origin    string
}

// Result is the payload of bus.KindSendAck and bus.KindSendFailed.
type Result struct {
	ChatJID     string `json:"chat_id"`
	ClientMsgID string `json:"client_msg_id"`
	ServerMsgID string `json:"server_msg_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Sender queues outbound messages and drains them to a Deliverer.
type Sender struct {
	db      *store.DB
	deliver Deliverer
	bus     *bus.Bus
	txlog   TxObserver
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, d Deliverer, b *bus.Bus, tx TxObserver, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:      db,
		deliver: d,
		bus:     b,
		txlog:   tx,
		logger:  logger.Named("outbox"),
	}
}

// Enqueue validates and queues a message, appending it to the conversation
// with status sending. The returned message is what operators see until the
// drain loop settles it.
func (s *Sender) Enqueue(ctx context.Context, out Outbound) (*store.Message, error) {
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	jid := transport.EnsureJID(out.ChatJID)
	if jid == "" {
		return nil, ErrInvalidTarget
	}
	origin := out.Origin
	if origin == "" {
		origin = OriginManual
	}

	entry := &store.OutboxEntry{
		ClientMsgID: uuid.NewString(),
		ChatJID:     jid,
		Body:        text,
		MediaURL:    out.MediaURL,
		MediaType:   out.MediaType,
		Buttons:     out.Buttons,
		Origin:      origin,
	}
	if err := s.db.QueueOutbox(entry); err != nil {
		return nil, fmt.Errorf("queue outbox: %w", err)
	}

	msg := &store.Message{
		ChatJID:   jid,
		MsgID:     entry.ClientMsgID,
		Sender:    "me",
		Body:      text,
		FromMe:    true,
		Status:    store.StatusSending,
		MediaURL:  out.MediaURL,
		MediaType: out.MediaType,
		Buttons:   out.Buttons,
		Timestamp: time.Now().UnixMilli(),
	}
	if _, err := s.db.AppendMessage(msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if err := s.db.RecordOutbound(jid, preview(text), msg.Timestamp); err != nil {
		s.logger.Warn("failed to update preview", zap.Error(err), zap.String("chat_jid", jid))
	}

	s.observe(entry.ClientMsgID, "pending", "Mengirim ke "+transport.PhoneFromJID(jid))
	s.bus.Emit(bus.KindAppended, *msg)
	s.logger.Debug("queued", zap.String("client_msg_id", entry.ClientMsgID), zap.String("origin", origin))
	return msg, nil
}

// Start fails entries interrupted by a previous process and begins draining.
func (s *Sender) Start(ctx context.Context) {
	if n, err := s.db.FailStale(); err != nil {
		s.logger.Error("failed to settle stale outbox entries", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("stale outbox entries marked failed", zap.Int64("count", n))
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for the in-flight batch.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain sends every queued entry once, oldest first.
func (s *Sender) Drain(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}
		s.send(ctx, entry)
	}
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) {
	serverMsgID, err := s.deliver.Send(ctx, transport.Outbound{
		ChatJID:   entry.ChatJID,
		Text:      entry.Body,
		MediaURL:  entry.MediaURL,
		MediaType: entry.MediaType,
		Buttons:   entry.Buttons,
	})
	res := Result{ChatJID: entry.ChatJID, ClientMsgID: entry.ClientMsgID, ServerMsgID: serverMsgID}
	phone := transport.PhoneFromJID(entry.ChatJID)

	if err != nil {
		s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
		_ = s.db.SetMessageStatus(entry.ChatJID, entry.ClientMsgID, store.StatusFailed)
		s.observe(entry.ClientMsgID, "error", fmt.Sprintf("Gagal mengirim ke %s: %v", phone, err))
		res.Error = err.Error()
		s.bus.Emit(bus.KindSendFailed, res)
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	_ = s.db.SetMessageStatus(entry.ChatJID, entry.ClientMsgID, store.StatusSent)
	s.observe(entry.ClientMsgID, "success", "Terkirim ke "+phone)

	s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", serverMsgID))
	s.bus.Emit(bus.KindSendAck, res)
}

func (s *Sender) observe(id, status, message string) {
	if s.txlog != nil {
		s.txlog.Observe(id, status, message)
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	return string([]rune(s)[:previewLen])
}
