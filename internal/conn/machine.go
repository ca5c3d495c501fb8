// Package conn owns the link to the messaging backend: the connection status
// machine, the pairing challenge and the single live transport.
package conn

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
)

// Status is the connection lifecycle state.
type Status string

const (
	Initial    Status = "initial"
	Connecting Status = "connecting"
	QRPending  Status = "qr_pending"
	Connected  Status = "connected"
	Error      Status = "error"
)

// validTransitions defines allowed status transitions. Every status may fall
// back to initial (disconnect) or error (unrecoverable failure).
var validTransitions = map[Status][]Status{
	Initial:    {Connecting, Error},
	Connecting: {QRPending, Connected, Initial, Error},
	QRPending:  {QRPending, Connecting, Connected, Initial, Error},
	Connected:  {Connecting, Initial, Error},
	Error:      {Initial, Connecting},
}

// Normalize maps a backend status string onto a Status.
func Normalize(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "connected":
		return Connected
	case "connecting":
		return Connecting
	case "qr", "qr_pending":
		return QRPending
	default:
		return Initial
	}
}

// StatusChange is the payload for bus.KindStatusChanged.
type StatusChange struct {
	From Status
	To   Status
}

// Machine tracks and enforces connection status transitions together with
// the pairing challenge that is only meaningful in QRPending.
type Machine struct {
	mu        sync.RWMutex
	current   Status
	challenge string
	lastErr   string
	since     time.Time
	bus       *bus.Bus
}

// NewMachine creates a machine in Initial.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Initial, since: time.Now(), bus: b}
}

// Current returns the current status.
func (m *Machine) Current() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Challenge returns the pending pairing challenge, empty outside QRPending.
func (m *Machine) Challenge() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.challenge
}

// LastError returns the message of the most recent failure.
func (m *Machine) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Since returns when the current status was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new status. Returns error if the
// transition is invalid. Leaving QRPending discards the challenge.
func (m *Machine) Transition(to Status) error {
	m.mu.Lock()
	change, err := m.transitionLocked(to)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.publish(change)
	return nil
}

func (m *Machine) transitionLocked(to Status) (StatusChange, error) {
	if !slices.Contains(validTransitions[m.current], to) {
		return StatusChange{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	if to != QRPending {
		m.challenge = ""
	}
	if to != Error {
		m.lastErr = ""
	}
	return StatusChange{From: from, To: to}, nil
}

// Reach moves to the target status, passing through Connecting when there is
// no direct edge. Already being in the target status is not an error.
func (m *Machine) Reach(to Status) error {
	m.mu.Lock()
	if m.current == to && to != QRPending {
		m.mu.Unlock()
		return nil
	}
	var changes []StatusChange
	if !slices.Contains(validTransitions[m.current], to) && to != Connecting {
		c, err := m.transitionLocked(Connecting)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		changes = append(changes, c)
	}
	c, err := m.transitionLocked(to)
	if err == nil {
		changes = append(changes, c)
	}
	m.mu.Unlock()

	for _, c := range changes {
		m.publish(c)
	}
	return err
}

// SetChallenge stores a pairing challenge, replacing any previous one, and
// moves to QRPending.
func (m *Machine) SetChallenge(code string) error {
	if err := m.Reach(QRPending); err != nil {
		return err
	}
	m.mu.Lock()
	m.challenge = code
	m.mu.Unlock()
	return nil
}

// Fail records msg and moves to Error.
func (m *Machine) Fail(msg string) {
	m.mu.Lock()
	var change StatusChange
	moved := false
	if m.current != Error {
		change, _ = m.transitionLocked(Error)
		moved = true
	}
	m.lastErr = msg
	m.mu.Unlock()
	if moved {
		m.publish(change)
	}
}

func (m *Machine) publish(c StatusChange) {
	m.bus.Emit(bus.KindStatusChanged, c)
}
