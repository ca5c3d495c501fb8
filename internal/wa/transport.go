// Package wa implements transport.Transport directly on a whatsmeow client.
package wa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/transport"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Scheme prefixes endpoints served by this package. "whatsmeow:" alone uses
// the instance's default device database; "whatsmeow:/path/to/device.db"
// names one explicitly.
const Scheme = "whatsmeow:"

// NewFactory returns a transport factory whose default device database is dbPath.
func NewFactory(dbPath string) transport.Factory {
	return func(endpoint string, opts transport.Options) (transport.Transport, error) {
		path := strings.TrimPrefix(endpoint, Scheme)
		if path == "" {
			path = dbPath
		}
		if path == "" {
			return nil, errors.New("whatsmeow endpoint has no device database")
		}
		return New(endpoint, path, opts), nil
	}
}

// Transport is a whatsmeow connection with a bounded reconnect budget.
type Transport struct {
	endpoint string
	dbPath   string
	opts     transport.Options
	logger   *zap.Logger

	mu        sync.Mutex
	container *sqlstore.Container
	client    *whatsmeow.Client
	handlerID uint32
	closed    bool

	lastQR   atomic.Value // string
	failures atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unstarted transport.
func New(endpoint, dbPath string, opts transport.Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		endpoint: endpoint,
		dbPath:   dbPath,
		opts:     opts,
		logger:   logger.Named("wa"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (t *Transport) Endpoint() string { return t.endpoint }

// Start opens the device store and connects. Unpaired devices stream pairing
// challenges as bus.KindQR events.
func (t *Transport) Start(ctx context.Context) error {
	wastore.SetOSInfo("wabot", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", t.dbPath),
		nil,
	)
	if err != nil {
		return fmt.Errorf("create device store: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = container.Close()
		return transport.ErrClosed
	}
	t.container = container
	t.mu.Unlock()

	return t.connect(ctx)
}

func (t *Transport) connect(ctx context.Context) error {
	device, err := t.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(device, nil)
	client.EnableAutoReconnect = true
	client.AutoReconnectHook = t.allowReconnect

	h := &eventHandler{
		bus:         t.opts.Bus,
		logger:      t.logger,
		resolve:     t.resolveLID,
		onConnected: func() { t.failures.Store(0) },
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.client = client
	t.handlerID = client.AddEventHandler(h.Handle)
	t.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(t.ctx)
		if err != nil {
			return fmt.Errorf("get QR channel: %w", err)
		}
		t.wg.Add(1)
		go t.pumpQR(qrChan)
	}

	t.logger.Info("connecting", zap.Bool("paired", client.Store.ID != nil))
	t.opts.Bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "connecting"})
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// allowReconnect caps consecutive reconnect attempts. Exhausting the budget
// reports a terminal failure and stops whatsmeow from retrying.
func (t *Transport) allowReconnect(err error) bool {
	n := int(t.failures.Add(1))
	limit := t.opts.ReconnectAttempts
	if limit > 0 && n > limit {
		t.logger.Error("reconnect budget exhausted", zap.Int("attempts", n-1), zap.Error(err))
		t.opts.Bus.Emit(bus.KindFailed, transport.Failure{Err: err.Error(), Terminal: true})
		return false
	}
	t.logger.Warn("reconnecting", zap.Int("attempt", n), zap.Error(err))
	if t.opts.ReconnectBackoff > 0 {
		select {
		case <-time.After(t.opts.ReconnectBackoff * time.Duration(n)):
		case <-t.ctx.Done():
			return false
		}
	}
	return true
}

func (t *Transport) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	defer t.wg.Done()
	for item := range ch {
		switch item.Event {
		case "code":
			t.lastQR.Store(item.Code)
			t.opts.Bus.Emit(bus.KindQR, transport.Challenge{Code: item.Code})
		case "success":
			t.lastQR.Store("")
			return
		case "timeout":
			t.lastQR.Store("")
			t.opts.Bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "close"})
			return
		default:
			if item.Error != nil {
				t.opts.Bus.Emit(bus.KindFailed, transport.Failure{Err: item.Error.Error()})
				return
			}
		}
	}
}

func (t *Transport) resolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	c := t.currentClient()
	if c == nil || c.Store == nil || c.Store.LIDs == nil {
		return jid
	}
	pn, err := c.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}

func (t *Transport) currentClient() *whatsmeow.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	return t.client
}

// Close disconnects and releases the device store. Safe to call twice.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	client, container := t.client, t.container
	t.mu.Unlock()

	t.cancel()
	if client != nil {
		client.RemoveEventHandler(t.handlerID)
		client.Disconnect()
	}
	t.wg.Wait()

	var err error
	if container != nil {
		err = container.Close()
	}
	t.logger.Info("transport closed")
	return err
}

// GetStatus republishes the current connection status, or the latest
// pairing challenge when the device is waiting to be linked.
func (t *Transport) GetStatus(ctx context.Context) error {
	c := t.currentClient()
	if c == nil {
		return transport.ErrClosed
	}
	switch {
	case c.IsConnected() && c.IsLoggedIn():
		t.opts.Bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "open"})
	case c.Store.ID == nil:
		if code, _ := t.lastQR.Load().(string); code != "" {
			t.opts.Bus.Emit(bus.KindQR, transport.Challenge{Code: code})
		} else {
			t.opts.Bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "connecting"})
		}
	case c.IsConnected():
		t.opts.Bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "connecting"})
	default:
		t.opts.Bus.Emit(bus.KindStatus, transport.StatusSignal{Status: "close"})
	}
	return nil
}

// GetContacts publishes the device contact store as a directory snapshot.
func (t *Transport) GetContacts(ctx context.Context) error {
	c := t.currentClient()
	if c == nil {
		return transport.ErrClosed
	}
	all, err := c.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return fmt.Errorf("get contacts: %w", err)
	}
	t.opts.Bus.Emit(bus.KindContacts, contactSnapshot(all))
	return nil
}

func (t *Transport) SendMessage(ctx context.Context, msg transport.Outbound) (string, error) {
	c := t.currentClient()
	if c == nil {
		return "", transport.ErrClosed
	}
	return sendText(ctx, c, msg.ChatJID, composeText(msg))
}

func sendText(ctx context.Context, c *whatsmeow.Client, jid, text string) (string, error) {
	to, err := types.ParseJID(transport.EnsureJID(jid))
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := c.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// Blast sends the same text to every target in the background, pacing sends
// by BlastInterval and reporting progress as bus.KindQueueLog events.
func (t *Transport) Blast(ctx context.Context, b transport.Blast) error {
	c := t.currentClient()
	if c == nil {
		return transport.ErrClosed
	}
	t.wg.Add(1)
	go t.runBlast(c, b)
	return nil
}

func (t *Transport) runBlast(c *whatsmeow.Client, b transport.Blast) {
	defer t.wg.Done()
	logf := func(status, msg string) {
		t.opts.Bus.Emit(bus.KindQueueLog, transport.QueueLog{CorrelationID: b.ID, Status: status, Message: msg})
	}
	logf("processing", fmt.Sprintf("sending to %d recipients", len(b.Targets)))

	var failed int
	for i, target := range b.Targets {
		if i > 0 && t.opts.BlastInterval > 0 {
			select {
			case <-time.After(t.opts.BlastInterval):
			case <-t.ctx.Done():
				logf("error", "blast interrupted: transport closed")
				return
			}
		}
		if _, err := sendText(t.ctx, c, target, b.Text); err != nil {
			failed++
			logf("error", fmt.Sprintf("%s: %v", target, err))
			continue
		}
		logf("success", fmt.Sprintf("sent to %s", target))
	}
	if failed > 0 {
		logf("error", fmt.Sprintf("blast finished with %d of %d failed", failed, len(b.Targets)))
		return
	}
	logf("completed", fmt.Sprintf("blast delivered to %d recipients", len(b.Targets)))
}

// Logout unlinks the device on the server side.
func (t *Transport) Logout(ctx context.Context) error {
	c := t.currentClient()
	if c == nil {
		return transport.ErrClosed
	}
	return c.Logout(ctx)
}

// Reset discards the local pairing and starts a fresh pairing flow.
func (t *Transport) Reset(ctx context.Context) error {
	c := t.currentClient()
	if c == nil {
		return transport.ErrClosed
	}
	if c.IsLoggedIn() {
		if err := c.Logout(ctx); err != nil {
			t.logger.Warn("logout before reset failed", zap.Error(err))
		}
	}
	c.RemoveEventHandler(t.handlerID)
	c.Disconnect()
	if c.Store.ID != nil {
		if err := c.Store.Delete(ctx); err != nil {
			return fmt.Errorf("delete device: %w", err)
		}
	}
	return t.connect(ctx)
}
