package wa

import (
	"context"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/transport"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// lidResolver maps a hidden-user JID to its phone-number JID.
type lidResolver func(ctx context.Context, jid types.JID) types.JID

// eventHandler turns whatsmeow events into transport signals on the bus.
// It holds no connection state of its own; the orchestrator drives state from
// the signals.
type eventHandler struct {
	bus     *bus.Bus
	logger  *zap.Logger
	resolve lidResolver

	// onConnected resets the reconnect budget.
	onConnected func()
}

func (h *eventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		h.logger.Info("whatsapp connected")
		if h.onConnected != nil {
			h.onConnected()
		}
		h.bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "open"})
	case *events.Disconnected:
		h.logger.Warn("whatsapp disconnected")
		h.bus.Emit(bus.KindClosed, nil)
	case *events.PairSuccess:
		h.logger.Info("device paired", zap.String("jid", evt.ID.ToNonAD().String()))
		h.bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "connecting"})
	case *events.LoggedOut:
		h.logger.Warn("whatsapp logged out", zap.String("reason", evt.Reason.String()))
		h.bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "close"})
	case *events.StreamReplaced:
		h.logger.Warn("stream replaced by another client")
		h.bus.Emit(bus.KindFailed, transport.Failure{Err: "stream replaced", Terminal: true})
	case *events.TemporaryBan:
		h.bus.Emit(bus.KindFailed, transport.Failure{Err: evt.String(), Terminal: true})
	case *events.ConnectFailure:
		h.bus.Emit(bus.KindFailed, transport.Failure{Err: evt.Reason.String()})
	}
}

func (h *eventHandler) handleMessage(evt *events.Message) {
	msg := ParseMessage(evt)
	msg.ChatJID = h.resolveJID(evt.Info.Chat).String()
	msg.Sender = h.resolveJID(evt.Info.Sender).String()
	h.bus.Emit(bus.KindMessage, msg)
}

func (h *eventHandler) resolveJID(jid types.JID) types.JID {
	jid = jid.ToNonAD()
	if h.resolve == nil {
		return jid
	}
	return h.resolve(context.Background(), jid).ToNonAD()
}
