package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/transport"
)

// Outbound event names understood by the backend.
const (
	EventGetStatus   = "whatsapp_get_status"
	EventGetContacts = "whatsapp_get_contacts"
	EventSend        = "send_message"
	EventBlast       = "whatsapp_blast"
	EventLogout      = "whatsapp_logout"
	EventReset       = "whatsapp_reset"
)

// Inbound event names pushed by the backend.
const (
	EventQR       = "whatsapp_qr"
	EventStatus   = "whatsapp_status"
	EventContacts = "whatsapp_contacts"
	EventMessage  = "whatsapp_message"
	EventQueueLog = "queue_log"
)

// Frame is one websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newFrame(event string, data any) (Frame, error) {
	f := Frame{Event: event}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return f, fmt.Errorf("encode %s: %w", event, err)
	}
	f.Data = raw
	return f, nil
}

// wireMessage accepts both the backend's nested key/message shape and a flat one.
type wireMessage struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
	} `json:"key"`
	Message *struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
	} `json:"message"`
	PushName         string          `json:"pushName"`
	MessageTimestamp json.RawMessage `json:"messageTimestamp"`

	ID     string `json:"id"`
	JID    string `json:"jid"`
	Text   string `json:"text"`
	FromMe bool   `json:"fromMe"`
}

func (w wireMessage) toInbound(now time.Time) transport.InboundMessage {
	msg := transport.InboundMessage{
		ID:        firstNonEmpty(w.Key.ID, w.ID),
		ChatJID:   firstNonEmpty(w.Key.RemoteJID, w.JID),
		PushName:  w.PushName,
		FromMe:    w.Key.FromMe || w.FromMe,
		Timestamp: parseTimestamp(w.MessageTimestamp, now),
	}
	msg.Sender = msg.ChatJID
	if w.Message != nil {
		msg.Text = w.Message.Conversation
		if msg.Text == "" && w.Message.ExtendedTextMessage != nil {
			msg.Text = w.Message.ExtendedTextMessage.Text
		}
	}
	if msg.Text == "" {
		msg.Text = w.Text
	}
	return msg
}

// parseTimestamp reads unix seconds given as a number or a numeric string.
func parseTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return fallback
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// decode converts an inbound frame into a bus event. ok is false for unknown
// events and payloads that cannot be decoded.
func decode(f Frame, now time.Time) (kind string, payload any, ok bool) {
	switch f.Event {
	case EventQR:
		var code string
		if err := json.Unmarshal(f.Data, &code); err != nil || code == "" {
			return "", nil, false
		}
		return bus.KindQR, transport.Challenge{Code: code}, true
	case EventStatus:
		var status string
		if err := json.Unmarshal(f.Data, &status); err != nil {
			return "", nil, false
		}
		return bus.KindStatus, transport.StatusSignal{Status: status}, true
	case EventContacts:
		var list []transport.RawContact
		if err := json.Unmarshal(f.Data, &list); err != nil || list == nil {
			return bus.KindContacts, transport.ContactSnapshot{Valid: false}, true
		}
		return bus.KindContacts, transport.ContactSnapshot{Contacts: list, Valid: true}, true
	case EventMessage:
		var w wireMessage
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return "", nil, false
		}
		return bus.KindMessage, w.toInbound(now), true
	case EventQueueLog:
		var q transport.QueueLog
		if err := json.Unmarshal(f.Data, &q); err != nil {
			return "", nil, false
		}
		return bus.KindQueueLog, q, true
	default:
		return "", nil, false
	}
}
