package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/transport"
	"go.uber.org/zap"
)

// Builder creates a transport for an endpoint. transport.Registry.Build satisfies it.
type Builder func(endpoint string, opts transport.Options) (transport.Transport, error)

// SyncTracker is told when a directory resync is requested.
type SyncTracker interface {
	BeginSync()
}

// EndpointStore persists the last opened endpoint.
type EndpointStore interface {
	SetEndpoint(endpoint string) error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Build     Builder
	Transport transport.Options
	Endpoints EndpointStore
	Sync      SyncTracker
	Logger    *zap.Logger

	// SettleDelay is the wait between "open" and the contact resync.
	SettleDelay time.Duration
	// SwitchStepDelay separates logout, reset and the status request during
	// an account switch.
	SwitchStepDelay time.Duration
}

// Snapshot is a consistent view of the connection for operators.
type Snapshot struct {
	Status    Status    `json:"status"`
	Challenge string    `json:"challenge,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Resetting bool      `json:"resetting"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}

// Manager owns the single live transport. Open replaces it, the Handle*
// methods apply inbound transport signals, and outbound calls are refused
// unless the link is connected.
type Manager struct {
	cfg     ManagerConfig
	machine *Machine
	bus     *bus.Bus
	logger  *zap.Logger

	openMu sync.Mutex // serializes Open and Close

	mu        sync.Mutex
	tr        transport.Transport
	endpoint  string
	resetting bool
	// deferred is the latest challenge seen during an account switch.
	deferred string
	settle    *time.Timer
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager with no transport.
func NewManager(machine *Machine, b *bus.Bus, cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Transport.Bus == nil {
		cfg.Transport.Bus = b
	}
	if cfg.Transport.Logger == nil {
		cfg.Transport.Logger = logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		machine: machine,
		bus:     b,
		logger:  logger.Named("conn"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Machine returns the status machine.
func (m *Manager) Machine() *Machine { return m.machine }

// Current returns a snapshot of the connection.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	endpoint, resetting := m.endpoint, m.resetting
	m.mu.Unlock()
	m.machine.mu.RLock()
	defer m.machine.mu.RUnlock()
	return Snapshot{
		Status:    m.machine.current,
		Challenge: m.machine.challenge,
		Endpoint:  endpoint,
		Resetting: resetting,
		LastError: m.machine.lastErr,
		Since:     m.machine.since,
	}
}

func isLive(s Status) bool {
	return s == Connecting || s == Connected || s == QRPending
}

// Open connects to endpoint. Reopening the endpoint that is already live is a
// no-op. Any previous transport is closed before the new one is built, on
// every path. The transport outlives ctx.
func (m *Manager) Open(ctx context.Context, endpoint string) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.tr != nil && m.endpoint == endpoint && isLive(m.machine.Current()) {
		m.mu.Unlock()
		m.logger.Debug("open ignored, already live", zap.String("endpoint", endpoint))
		return nil
	}
	old := m.tr
	m.tr = nil
	m.stopSettleLocked()
	m.mu.Unlock()

	if old != nil {
		m.logger.Info("closing previous transport", zap.String("endpoint", old.Endpoint()))
		if err := old.Close(); err != nil {
			m.logger.Warn("close previous transport", zap.Error(err))
		}
	}

	tr, err := m.cfg.Build(endpoint, m.cfg.Transport)
	if err != nil {
		m.machine.Fail(err.Error())
		return fmt.Errorf("build transport: %w", err)
	}
	if err := m.machine.Reach(Connecting); err != nil {
		m.logger.Debug("reach connecting", zap.Error(err))
	}

	m.mu.Lock()
	m.tr = tr
	m.endpoint = endpoint
	m.mu.Unlock()

	if err := tr.Start(context.WithoutCancel(ctx)); err != nil {
		_ = tr.Close()
		m.mu.Lock()
		if m.tr == tr {
			m.tr = nil
		}
		m.mu.Unlock()
		m.machine.Fail(err.Error())
		return fmt.Errorf("start transport: %w", err)
	}

	if m.cfg.Endpoints != nil {
		if err := m.cfg.Endpoints.SetEndpoint(endpoint); err != nil {
			m.logger.Warn("persist endpoint", zap.Error(err))
		}
	}
	m.logger.Info("transport opened", zap.String("endpoint", endpoint))
	return nil
}

// Close releases the transport and stops pending timers and switches.
func (m *Manager) Close() error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	tr := m.tr
	m.tr = nil
	m.stopSettleLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	var err error
	if tr != nil {
		err = tr.Close()
	}
	_ = m.machine.Reach(Initial)
	return err
}

func (m *Manager) stopSettleLocked() {
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
}

func (m *Manager) isResetting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetting
}

// HandleStatus applies a backend status signal. "open" also schedules a
// contact resync after the settle delay; a newer "open" replaces the pending one.
func (m *Manager) HandleStatus(raw string) {
	st := Normalize(raw)
	if m.isResetting() {
		m.logger.Debug("status ignored during account switch", zap.String("status", raw))
		return
	}
	if err := m.machine.Reach(st); err != nil {
		m.logger.Debug("status not applied", zap.String("status", raw), zap.Error(err))
		return
	}
	switch st {
	case Connected:
		m.scheduleResync()
	case Initial:
		m.mu.Lock()
		m.stopSettleLocked()
		m.mu.Unlock()
	}
}

func (m *Manager) scheduleResync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stopSettleLocked()
	var t *time.Timer
	t = time.AfterFunc(m.cfg.SettleDelay, func() {
		m.mu.Lock()
		current := m.settle == t
		if current {
			m.settle = nil
		}
		m.mu.Unlock()
		if !current {
			return
		}
		if err := m.RequestContacts(m.ctx); err != nil {
			m.logger.Warn("settle resync", zap.Error(err))
		}
	})
	m.settle = t
}

// HandleChallenge stores a new pairing challenge.
func (m *Manager) HandleChallenge(code string) {
	if code == "" {
		return
	}
	m.mu.Lock()
	if m.resetting {
		m.deferred = code
		m.mu.Unlock()
		m.logger.Debug("challenge deferred until the account switch ends")
		return
	}
	m.mu.Unlock()
	if err := m.machine.SetChallenge(code); err != nil {
		m.logger.Debug("challenge not applied", zap.Error(err))
	}
}

// HandleClosed applies a transport disconnect.
func (m *Manager) HandleClosed() {
	if m.isResetting() {
		return
	}
	m.mu.Lock()
	m.stopSettleLocked()
	m.mu.Unlock()
	_ = m.machine.Reach(Initial)
}

// HandleFailure applies a transport failure. Only terminal failures change
// the status; the others are retried by the transport itself.
func (m *Manager) HandleFailure(f transport.Failure) {
	if !f.Terminal {
		m.logger.Warn("transport error", zap.String("error", f.Err))
		return
	}
	m.logger.Error("transport failed", zap.String("error", f.Err))
	m.mu.Lock()
	m.stopSettleLocked()
	m.mu.Unlock()
	m.machine.Fail(f.Err)
}

// RequestAccountSwitch unlinks the current account and starts a fresh
// pairing. It runs in the background; the status stays Connecting and
// Resetting is reported until the sequence ends.
func (m *Manager) RequestAccountSwitch(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.resetting {
		m.mu.Unlock()
		return ErrSwitchInProgress
	}
	tr := m.tr
	if tr == nil || m.machine.Current() != Connected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.resetting = true
	m.stopSettleLocked()
	m.wg.Add(1)
	m.mu.Unlock()

	m.bus.Emit(bus.KindResetting, true)
	_ = m.machine.Reach(Connecting)
	go m.runSwitch(tr)
	return nil
}

func (m *Manager) runSwitch(tr transport.Transport) {
	defer m.wg.Done()
	failed := true
	defer func() {
		// Drain deferred challenges before clearing resetting.
		for {
			m.mu.Lock()
			code := m.deferred
			m.deferred = ""
			if code == "" || failed {
				m.resetting = false
				m.mu.Unlock()
				break
			}
			m.mu.Unlock()
			if err := m.machine.SetChallenge(code); err != nil {
				m.logger.Debug("deferred challenge not applied", zap.Error(err))
			}
		}
		m.bus.Emit(bus.KindResetting, false)
	}()

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"logout", tr.Logout},
		{"reset", tr.Reset},
		{"status", tr.GetStatus},
	}
	for i, step := range steps {
		if i > 0 && !m.sleep(m.cfg.SwitchStepDelay) {
			return
		}
		m.logger.Info("account switch", zap.String("step", step.name))
		if err := step.run(m.ctx); err != nil {
			m.logger.Error("account switch failed", zap.String("step", step.name), zap.Error(err))
			m.machine.Fail(fmt.Sprintf("account switch %s: %v", step.name, err))
			return
		}
	}
	failed = false
}

func (m *Manager) sleep(d time.Duration) bool {
	if d <= 0 {
		return m.ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) transport() (transport.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.tr == nil {
		return nil, ErrNotConnected
	}
	return m.tr, nil
}

func (m *Manager) connected() (transport.Transport, error) {
	tr, err := m.transport()
	if err != nil {
		return nil, err
	}
	if m.machine.Current() != Connected || m.isResetting() {
		return nil, ErrNotConnected
	}
	return tr, nil
}

// Ready reports ErrNotConnected unless outbound calls would be accepted now.
func (m *Manager) Ready() error {
	_, err := m.connected()
	return err
}

// RequestContacts marks a directory sync as started and asks the backend for
// a contact snapshot.
func (m *Manager) RequestContacts(ctx context.Context) error {
	tr, err := m.transport()
	if err != nil {
		return err
	}
	if m.cfg.Sync != nil {
		m.cfg.Sync.BeginSync()
	}
	return tr.GetContacts(ctx)
}

// RequestStatus asks the backend to report its status.
func (m *Manager) RequestStatus(ctx context.Context) error {
	tr, err := m.transport()
	if err != nil {
		return err
	}
	return tr.GetStatus(ctx)
}

// Send delivers one message. Requires Connected.
func (m *Manager) Send(ctx context.Context, msg transport.Outbound) (string, error) {
	tr, err := m.connected()
	if err != nil {
		return "", err
	}
	return tr.SendMessage(ctx, msg)
}

// Blast hands one batch to the backend. Requires Connected.
func (m *Manager) Blast(ctx context.Context, b transport.Blast) error {
	tr, err := m.connected()
	if err != nil {
		return err
	}
	return tr.Blast(ctx, b)
}
