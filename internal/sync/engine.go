// Package sync applies transport signals to local state. The Engine consumes
// every transport event on one goroutine, so inbound processing is strictly
// ordered; the Reconciler owns the contact directory.
package sync

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/dedup"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/transport"
	"go.uber.org/zap"
)

const previewLen = 100

// ConnHandler applies connection signals.
type ConnHandler interface {
	HandleStatus(raw string)
	HandleChallenge(code string)
	HandleClosed()
	HandleFailure(f transport.Failure)
}

// TxObserver records delivery progress.
type TxObserver interface {
	Observe(id, status, message string)
}

// ReplyDispatcher is offered every accepted inbound message. It must not block.
type ReplyDispatcher interface {
	OnInboundMessage(ctx context.Context, msg store.Message, contact store.Contact)
}

// Deps are the collaborators of an Engine. Nil collaborators are skipped.
type Deps struct {
	DB         *store.DB
	Bus        *bus.Bus
	Logger     *zap.Logger
	Filter     *dedup.Filter
	Reconciler *Reconciler
	Conn       ConnHandler
	TxLog      TxObserver
	Replies    ReplyDispatcher
}

// Engine ingests transport events in arrival order.
type Engine struct {
	Deps
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Filter == nil {
		d.Filter = dedup.NewFilter(dedup.DefaultCapacity)
	}
	if d.Reconciler == nil {
		d.Reconciler = NewReconciler(d.DB, d.Bus, d.Logger, 0)
	}
	return &Engine{Deps: d}
}

// Start subscribes to transport events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.Bus.Subscribe(bus.KindTransportPrefix, 1024)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.Reconciler.Stop()
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessage:
		msg, ok := evt.Payload.(transport.InboundMessage)
		if !ok {
			return
		}
		if _, err := e.IngestMessage(ctx, msg); err != nil {
			e.Logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.ID))
		}
	case bus.KindContacts:
		snap, ok := evt.Payload.(transport.ContactSnapshot)
		if !ok {
			return
		}
		if _, err := e.Reconciler.Merge(snap); err != nil {
			e.Logger.Error("failed to merge contacts", zap.Error(err))
		}
	case bus.KindQueueLog:
		q, ok := evt.Payload.(transport.QueueLog)
		if ok && e.TxLog != nil {
			e.TxLog.Observe(q.CorrelationID, q.Status, q.Message)
		}
	case bus.KindStatus:
		if s, ok := evt.Payload.(transport.StatusSignal); ok && e.Conn != nil {
			e.Conn.HandleStatus(s.Status)
		}
	case bus.KindQR:
		if c, ok := evt.Payload.(transport.Challenge); ok && e.Conn != nil {
			e.Conn.HandleChallenge(c.Code)
		}
	case bus.KindClosed:
		if e.Conn != nil {
			e.Conn.HandleClosed()
		}
	case bus.KindFailed:
		if f, ok := evt.Payload.(transport.Failure); ok && e.Conn != nil {
			e.Conn.HandleFailure(f)
		}
	}
}

// IngestMessage appends an inbound message to its conversation. It reports
// false for messages that were filtered out or already stored. A message is
// remembered as delivered only after it is stored, so a redelivery after a
// store error is ingested again.
func (e *Engine) IngestMessage(ctx context.Context, in transport.InboundMessage) (bool, error) {
	if !transport.IsIndividual(in.ChatJID) || !e.Filter.Eligible(in) {
		return false, nil
	}
	if e.Filter.Seen(in.ChatJID, in.ID) {
		return false, nil
	}

	contact, err := e.Reconciler.EnsureContact(in.ChatJID, in.PushName)
	if err != nil {
		return false, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := store.Message{
		ChatJID:   in.ChatJID,
		MsgID:     in.ID,
		Sender:    transport.PhoneFromJID(in.Sender),
		Body:      in.Text,
		Status:    store.StatusReceived,
		Timestamp: ts.UnixMilli(),
	}
	if msg.Sender == "" {
		msg.Sender = contact.Phone
	}
	appended, err := e.DB.AppendMessage(&msg)
	if err != nil {
		return false, fmt.Errorf("append message: %w", err)
	}
	e.Filter.Remember(in.ChatJID, in.ID)
	if !appended {
		return false, nil
	}
	if err := e.DB.RecordInbound(in.ChatJID, truncate(in.Text, previewLen), msg.Timestamp); err != nil {
		return false, fmt.Errorf("record inbound: %w", err)
	}

	e.Bus.Emit(bus.KindAppended, msg)
	if e.Replies != nil {
		e.Replies.OnInboundMessage(ctx, msg, *contact)
	}
	return true, nil
}

// MarkRead resets the unread counter of a conversation.
func (e *Engine) MarkRead(jid string) error {
	return e.DB.MarkRead(jid)
}

// ClearConversation drops every message of a conversation. The contact stays.
func (e *Engine) ClearConversation(jid string) (int64, error) {
	return e.DB.ClearConversation(jid)
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen])
}
