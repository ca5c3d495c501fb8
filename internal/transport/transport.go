// Package transport defines the boundary between the orchestrator and a
// messaging backend. A Transport pushes inbound signals onto the bus under the
// bus.Kind* transport kinds and accepts outbound signals through its methods.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by outbound calls on a transport that was closed.
	ErrClosed = errors.New("transport closed")
	// ErrUnavailable is returned when the link to the backend is down.
	ErrUnavailable = errors.New("transport link unavailable")
)

// Transport is one live link to a messaging backend. Implementations own every
// resource they allocate and release all of it in Close.
type Transport interface {
	Endpoint() string
	Start(ctx context.Context) error
	Close() error

	GetStatus(ctx context.Context) error
	GetContacts(ctx context.Context) error
	SendMessage(ctx context.Context, msg Outbound) (serverID string, err error)
	Blast(ctx context.Context, b Blast) error
	Logout(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Options configure a transport built by a Factory.
type Options struct {
	Bus               *bus.Bus
	Logger            *zap.Logger
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	BlastInterval     time.Duration
}

// Factory builds a transport for an endpoint.
type Factory func(endpoint string, opts Options) (Transport, error)

// Registry dispatches an endpoint to a factory by scheme prefix.
type Registry map[string]Factory

// Build picks the factory whose key prefixes endpoint.
func (r Registry) Build(endpoint string, opts Options) (Transport, error) {
	for prefix, f := range r {
		if strings.HasPrefix(endpoint, prefix) {
			return f(endpoint, opts)
		}
	}
	return nil, fmt.Errorf("no transport for endpoint %q", endpoint)
}

// Outbound is a single message to one recipient.
type Outbound struct {
	ChatJID   string   `json:"jid"`
	Text      string   `json:"text"`
	MediaURL  string   `json:"mediaUrl,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
	Buttons   []string `json:"buttons,omitempty"`
}

// Blast is one batch of identical content to many recipients.
type Blast struct {
	ID      string   `json:"id,omitempty"`
	Targets []string `json:"jids"`
	Text    string   `json:"text"`
}

// StatusSignal carries the backend's raw connection status ("open", "connecting", "close", ...).
type StatusSignal struct {
	Status string
}

// Challenge is a pairing challenge (QR payload) issued by the backend.
type Challenge struct {
	Code string
}

// RawContact is one entry of a remote directory snapshot.
type RawContact struct {
	ID           string `json:"id"`
	JID          string `json:"jid,omitempty"`
	Name         string `json:"name,omitempty"`
	VerifiedName string `json:"verifiedName,omitempty"`
	Notify       string `json:"notify,omitempty"`
}

// Key returns the identity of the entry, preferring id over jid.
func (c RawContact) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.JID
}

// BestName returns the first non-empty of name, verified name and push name.
func (c RawContact) BestName() string {
	for _, n := range []string{c.Name, c.VerifiedName, c.Notify} {
		if s := strings.TrimSpace(n); s != "" {
			return s
		}
	}
	return ""
}

// ContactSnapshot is a point-in-time directory. Valid is false when the
// backend sent something that was not a list.
type ContactSnapshot struct {
	Contacts []RawContact
	Valid    bool
}

// InboundMessage is a message delivered by the backend, already reduced to
// the fields the orchestrator uses.
type InboundMessage struct {
	ID        string
	ChatJID   string
	Sender    string
	PushName  string
	Text      string
	FromMe    bool
	Timestamp time.Time
}

// QueueLog is a delivery progress report from the backend's send queue.
type QueueLog struct {
	CorrelationID string `json:"id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Failure reports a transport error. Terminal failures mean the bounded
// reconnect policy gave up.
type Failure struct {
	Err      string
	Terminal bool
}
