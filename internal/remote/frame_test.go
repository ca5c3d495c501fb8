package remote

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/transport"
)

func TestDecode(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		frame   string
		kind    string
		payload any
		ok      bool
	}{
		{
			name:    "qr",
			frame:   `{"event":"whatsapp_qr","data":"2@abc"}`,
			kind:    bus.KindQR,
			payload: transport.Challenge{Code: "2@abc"},
			ok:      true,
		},
		{
			name:    "status",
			frame:   `{"event":"whatsapp_status","data":"open"}`,
			kind:    bus.KindStatus,
			payload: transport.StatusSignal{Status: "open"},
			ok:      true,
		},
		{
			name:  "contacts list",
			frame: `{"event":"whatsapp_contacts","data":[{"id":"1@s.whatsapp.net","notify":"Ani"},{"jid":"2@s.whatsapp.net"}]}`,
			kind:  bus.KindContacts,
			payload: transport.ContactSnapshot{Valid: true, Contacts: []transport.RawContact{
				{ID: "1@s.whatsapp.net", Notify: "Ani"},
				{JID: "2@s.whatsapp.net"},
			}},
			ok: true,
		},
		{
			name:    "contacts not a list",
			frame:   `{"event":"whatsapp_contacts","data":{"oops":true}}`,
			kind:    bus.KindContacts,
			payload: transport.ContactSnapshot{Valid: false},
			ok:      true,
		},
		{
			name:  "nested message",
			frame: `{"event":"whatsapp_message","data":{"key":{"id":"M1","remoteJid":"628@s.whatsapp.net","fromMe":false},"message":{"conversation":"halo"},"pushName":"Budi","messageTimestamp":1700000000}}`,
			kind:  bus.KindMessage,
			payload: transport.InboundMessage{
				ID: "M1", ChatJID: "628@s.whatsapp.net", Sender: "628@s.whatsapp.net",
				PushName: "Budi", Text: "halo", Timestamp: time.Unix(1700000000, 0),
			},
			ok: true,
		},
		{
			name:  "extended text with string timestamp",
			frame: `{"event":"whatsapp_message","data":{"key":{"id":"M2","remoteJid":"628@s.whatsapp.net"},"message":{"extendedTextMessage":{"text":"link"}},"messageTimestamp":"1700000001"}}`,
			kind:  bus.KindMessage,
			payload: transport.InboundMessage{
				ID: "M2", ChatJID: "628@s.whatsapp.net", Sender: "628@s.whatsapp.net",
				Text: "link", Timestamp: time.Unix(1700000001, 0),
			},
			ok: true,
		},
		{
			name:  "flat message without timestamp",
			frame: `{"event":"whatsapp_message","data":{"id":"M3","jid":"628@s.whatsapp.net","text":"hi","fromMe":true}}`,
			kind:  bus.KindMessage,
			payload: transport.InboundMessage{
				ID: "M3", ChatJID: "628@s.whatsapp.net", Sender: "628@s.whatsapp.net",
				Text: "hi", FromMe: true, Timestamp: now,
			},
			ok: true,
		},
		{
			name:    "queue log",
			frame:   `{"event":"queue_log","data":{"id":"blast:1","status":"success","message":"done"}}`,
			kind:    bus.KindQueueLog,
			payload: transport.QueueLog{CorrelationID: "blast:1", Status: "success", Message: "done"},
			ok:      true,
		},
		{name: "unknown event", frame: `{"event":"whatsapp_presence","data":{}}`},
		{name: "qr wrong type", frame: `{"event":"whatsapp_qr","data":42}`},
		{name: "message wrong type", frame: `{"event":"whatsapp_message","data":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Frame
			if err := json.Unmarshal([]byte(tt.frame), &f); err != nil {
				t.Fatalf("unmarshal frame: %v", err)
			}
			kind, payload, ok := decode(f, now)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if kind != tt.kind {
				t.Errorf("kind = %q, want %q", kind, tt.kind)
			}
			if diff := cmp.Diff(tt.payload, payload); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(time.Second, tt.attempt); got != tt.want {
			t.Errorf("backoff(1s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if got := backoff(time.Minute, 1); got != maxBackoff {
		t.Errorf("backoff above cap = %v, want %v", got, maxBackoff)
	}
}

func TestNewFrameEncodesOutbound(t *testing.T) {
	f, err := newFrame(EventSend, transport.Outbound{ChatJID: "628@s.whatsapp.net", Text: "halo"})
	if err != nil {
		t.Fatalf("newFrame: %v", err)
	}
	raw, _ := json.Marshal(f)
	want := `{"event":"send_message","data":{"jid":"628@s.whatsapp.net","text":"halo"}}`
	if string(raw) != want {
		t.Errorf("frame = %s, want %s", raw, want)
	}

	f, _ = newFrame(EventGetStatus, nil)
	raw, _ = json.Marshal(f)
	if string(raw) != `{"event":"whatsapp_get_status"}` {
		t.Errorf("bare frame = %s", raw)
	}
}
