package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/conn"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/transport"
	"github.com/matheus3301/wabot/internal/txlog"
	"go.uber.org/zap"
)

// mockDeliverer records calls and returns configurable results.
type mockDeliverer struct {
	mu    sync.Mutex
	calls []transport.Outbound
	err   error
}

func (m *mockDeliverer) Send(_ context.Context, msg transport.Outbound) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("server-%d", len(m.calls)), nil
}

func (m *mockDeliverer) sent() []transport.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Outbound(nil), m.calls...)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnqueueAppendsSendingMessage(t *testing.T) {
	db := testDB(t)
	tx := txlog.New(8, nil)
	s := NewSender(db, &mockDeliverer{}, nil, tx, nil)

	msg, err := s.Enqueue(context.Background(), Outbound{ChatJID: "+62 812-3456", Text: "  halo  "})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if msg.ChatJID != "628123456@s.whatsapp.net" {
		t.Errorf("chat = %q, want normalized jid", msg.ChatJID)
	}

	msgs, _ := db.ListMessages("628123456@s.whatsapp.net", 10)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if m := msgs[0]; !m.FromMe || m.Status != store.StatusSending || m.Body != "halo" {
		t.Errorf("message = %+v", m)
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 1 || pending[0].Origin != OriginManual {
		t.Fatalf("pending = %+v", pending)
	}

	entries := tx.Entries()
	if len(entries) != 1 || entries[0].Status != txlog.Pending || entries[0].ID != msg.MsgID {
		t.Errorf("txlog = %+v", entries)
	}
}

func TestEnqueueRejects(t *testing.T) {
	db := testDB(t)
	s := NewSender(db, &mockDeliverer{}, nil, nil, nil)

	if _, err := s.Enqueue(context.Background(), Outbound{ChatJID: "628", Text: "   "}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank text: err = %v, want ErrEmptyText", err)
	}
	if _, err := s.Enqueue(context.Background(), Outbound{ChatJID: "abc", Text: "hi"}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("bad target: err = %v, want ErrInvalidTarget", err)
	}
	if pending, _ := db.PendingOutbox(); len(pending) != 0 {
		t.Errorf("rejected sends were queued: %+v", pending)
	}
}

func TestDrainSendsInOrder(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockDeliverer{}
	tx := txlog.New(8, nil)
	logger, _ := zap.NewDevelopment()
	s := NewSender(db, mock, b, tx, logger)

	ch, unsub := b.Subscribe(bus.KindSendAck, 10)
	defer unsub()

	first, _ := s.Enqueue(context.Background(), Outbound{ChatJID: "62811@s.whatsapp.net", Text: "one"})
	_, _ = s.Enqueue(context.Background(), Outbound{
		ChatJID: "62811@s.whatsapp.net", Text: "two", Origin: OriginAuto,
		MediaURL: "https://cdn.example/a.jpg", MediaType: "image", Buttons: []string{"Pesan"},
	})

	s.Drain(context.Background())

	calls := mock.sent()
	if len(calls) != 2 || calls[0].Text != "one" || calls[1].Text != "two" {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[1].MediaURL != "https://cdn.example/a.jpg" || len(calls[1].Buttons) != 1 {
		t.Errorf("media and buttons not forwarded: %+v", calls[1])
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after send", len(pending))
	}
	msgs, _ := db.ListMessages("62811@s.whatsapp.net", 10)
	for _, m := range msgs {
		if m.Status != store.StatusSent {
			t.Errorf("message %s status = %q, want sent", m.MsgID, m.Status)
		}
	}

	select {
	case evt := <-ch:
		res := evt.Payload.(Result)
		if res.ClientMsgID != first.MsgID || res.ServerMsgID != "server-1" {
			t.Errorf("ack = %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for send_ack event")
	}

	if e := tx.Entries(); len(e) != 2 || e[0].Status != txlog.Success || e[1].Status != txlog.Success {
		t.Errorf("txlog = %+v", e)
	}
}

func TestDrainHandlesFailure(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockDeliverer{err: fmt.Errorf("network error")}
	tx := txlog.New(8, nil)
	s := NewSender(db, mock, b, tx, nil)

	ch, unsub := b.Subscribe(bus.KindSendFailed, 10)
	defer unsub()

	msg, _ := s.Enqueue(context.Background(), Outbound{ChatJID: "62811@s.whatsapp.net", Text: "hello"})
	s.Drain(context.Background())

	select {
	case evt := <-ch:
		if res := evt.Payload.(Result); res.Error != "network error" {
			t.Errorf("failure payload = %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}

	msgs, _ := db.ListMessages(msg.ChatJID, 10)
	if len(msgs) != 1 || msgs[0].Status != store.StatusFailed {
		t.Errorf("messages = %+v, want one failed", msgs)
	}
	if e := tx.Entries(); len(e) != 1 || e[0].Status != txlog.Error {
		t.Errorf("txlog = %+v", e)
	}

	// Failed entries are not retried.
	s.Drain(context.Background())
	if n := len(mock.sent()); n != 1 {
		t.Errorf("got %d sends, want 1", n)
	}
}

func TestDrainWithoutConnection(t *testing.T) {
	db := testDB(t)
	m := conn.NewManager(conn.NewMachine(nil), nil, conn.ManagerConfig{})
	s := NewSender(db, m, nil, nil, nil)

	msg, _ := s.Enqueue(context.Background(), Outbound{ChatJID: "62811", Text: "hello"})
	s.Drain(context.Background())

	msgs, _ := db.ListMessages(msg.ChatJID, 10)
	if len(msgs) != 1 || msgs[0].Status != store.StatusFailed {
		t.Errorf("messages = %+v, want one failed", msgs)
	}
}

func TestSenderLoop(t *testing.T) {
	db := testDB(t)
	mock := &mockDeliverer{}
	s := NewSender(db, mock, nil, nil, nil)

	if _, err := s.Enqueue(context.Background(), Outbound{ChatJID: "62811", Text: "hello"}); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	deadline := time.Now().Add(3 * time.Second)
	for len(mock.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	s.Stop()

	if n := len(mock.sent()); n != 1 {
		t.Fatalf("got %d send calls, want 1", n)
	}
}

func TestStartFailsStaleEntries(t *testing.T) {
	db := testDB(t)
	if err := db.QueueOutbox(&store.OutboxEntry{ClientMsgID: "c1", ChatJID: "62811@s.whatsapp.net", Body: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("c1"); err != nil {
		t.Fatal(err)
	}

	mock := &mockDeliverer{}
	s := NewSender(db, mock, nil, nil, nil)
	s.Start(context.Background())
	time.Sleep(700 * time.Millisecond)
	s.Stop()

	if n := len(mock.sent()); n != 0 {
		t.Errorf("interrupted entry was resent %d times", n)
	}
}
