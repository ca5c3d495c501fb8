// Package remote implements transport.Transport as a websocket bridge to an
// external WhatsApp backend speaking JSON event frames.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxBackoff   = 30 * time.Second
	pingInterval = 20 * time.Second
	writeTimeout = 10 * time.Second
)

// IsEndpoint reports whether endpoint is served by this package.
func IsEndpoint(endpoint string) bool {
	return strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://")
}

// Factory builds a remote transport. It matches transport.Factory.
func Factory(endpoint string, opts transport.Options) (transport.Transport, error) {
	if !IsEndpoint(endpoint) {
		return nil, fmt.Errorf("not a websocket endpoint: %q", endpoint)
	}
	return New(endpoint, opts), nil
}

// Transport keeps one websocket open to the backend, redialing with
// exponential backoff until the attempt budget runs out.
type Transport struct {
	endpoint string
	opts     transport.Options
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unstarted transport.
func New(endpoint string, opts transport.Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		endpoint: endpoint,
		opts:     opts,
		logger:   logger.Named("remote").With(zap.String("endpoint", endpoint)),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (t *Transport) Endpoint() string { return t.endpoint }

// Start launches the connection loop and returns immediately.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	if t.started {
		return nil
	}
	t.started = true
	go t.run()
	return nil
}

// backoff returns the wait before redial number attempt (1-based).
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (t *Transport) run() {
	defer close(t.done)
	attempt := 0
	for {
		conn, _, err := websocket.Dial(t.ctx, t.endpoint, nil)
		if err == nil {
			attempt = 0
			t.logger.Info("connected")
			t.setConn(conn)
			if err := t.emit(t.ctx, EventGetStatus, nil); err != nil {
				t.logger.Warn("initial status request failed", zap.Error(err))
			}
			err = t.serve(conn)
			t.setConn(nil)
			_ = conn.Close(websocket.StatusNormalClosure, "")
			if t.ctx.Err() != nil {
				return
			}
			t.logger.Warn("connection lost", zap.Error(err))
			t.opts.Bus.Emit(bus.KindClosed, nil)
		}
		if t.ctx.Err() != nil {
			return
		}

		attempt++
		if limit := t.opts.ReconnectAttempts; limit > 0 && attempt > limit {
			t.logger.Error("reconnect budget exhausted", zap.Int("attempts", attempt-1))
			t.opts.Bus.Emit(bus.KindFailed, transport.Failure{Err: errString(err), Terminal: true})
			return
		}
		t.opts.Bus.Emit(bus.KindFailed, transport.Failure{Err: errString(err)})

		wait := backoff(t.opts.ReconnectBackoff, attempt)
		t.logger.Info("redialing", zap.Int("attempt", attempt), zap.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-t.ctx.Done():
			return
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}

// serve pumps inbound frames and keeps the link alive until either side fails.
func (t *Transport) serve(conn *websocket.Conn) error {
	g, ctx := errgroup.WithContext(t.ctx)
	g.Go(func() error {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			t.handleFrame(data)
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				pctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					return fmt.Errorf("ping: %w", err)
				}
			}
		}
	})
	return g.Wait()
}

func (t *Transport) handleFrame(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.logger.Debug("dropping malformed frame", zap.Error(err))
		return
	}
	kind, payload, ok := decode(f, t.now())
	if !ok {
		t.logger.Debug("dropping frame", zap.String("event", f.Event))
		return
	}
	t.opts.Bus.Emit(kind, payload)
}

func (t *Transport) setConn(c *websocket.Conn) {
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()
}

func (t *Transport) emit(ctx context.Context, event string, data any) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if conn == nil {
		return transport.ErrUnavailable
	}
	f, err := newFrame(event, data)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, f); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// Close stops the connection loop and waits for it to exit.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started, conn := t.started, t.conn
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "closing")
	}
	if started {
		<-t.done
	}
	t.logger.Info("transport closed")
	return nil
}

func (t *Transport) GetStatus(ctx context.Context) error {
	return t.emit(ctx, EventGetStatus, nil)
}

func (t *Transport) GetContacts(ctx context.Context) error {
	return t.emit(ctx, EventGetContacts, nil)
}

// SendMessage forwards the message. The backend does not acknowledge with an
// id, so the returned server id is always empty.
func (t *Transport) SendMessage(ctx context.Context, msg transport.Outbound) (string, error) {
	if msg.ChatJID == "" {
		return "", errors.New("send: empty recipient")
	}
	return "", t.emit(ctx, EventSend, msg)
}

func (t *Transport) Blast(ctx context.Context, b transport.Blast) error {
	return t.emit(ctx, EventBlast, b)
}

func (t *Transport) Logout(ctx context.Context) error {
	return t.emit(ctx, EventLogout, nil)
}

func (t *Transport) Reset(ctx context.Context) error {
	return t.emit(ctx, EventReset, nil)
}
