package conn

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
)

func TestNormalize(t *testing.T) {
	tests := map[string]Status{
		"open":       Connected,
		"connected":  Connected,
		" OPEN ":     Connected,
		"connecting": Connecting,
		"qr":         QRPending,
		"close":      Initial,
		"":           Initial,
		"banana":     Initial,
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Initial {
		t.Errorf("initial state = %s, want initial", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []Status
	}{
		{"pairing", []Status{Connecting, QRPending, Connecting, Connected}},
		{"direct connect", []Status{Connecting, Connected}},
		{"silent reconnect", []Status{Connecting, Connected, Connecting, Connected}},
		{"disconnect", []Status{Connecting, Connected, Initial}},
		{"failure and recovery", []Status{Connecting, Error, Initial, Connecting}},
		{"qr refresh", []Status{Connecting, QRPending, QRPending}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.path {
				if err := m.Transition(s); err != nil {
					t.Fatalf("transition to %s: %v", s, err)
				}
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []Status
		bad  Status
	}{
		{"initial to connected", nil, Connected},
		{"initial to qr", nil, QRPending},
		{"connected to qr", []Status{Connecting, Connected}, QRPending},
		{"error to connected", []Status{Error}, Connected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.path {
				if err := m.Transition(s); err != nil {
					t.Fatalf("setup transition to %s: %v", s, err)
				}
			}
			err := m.Transition(tt.bad)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%s) = %v, want ErrInvalidTransition", tt.bad, err)
			}
		})
	}
}

func TestReachPassesThroughConnecting(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindStatusChanged, 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Reach(Connected); err != nil {
		t.Fatalf("Reach(connected): %v", err)
	}
	for _, want := range []StatusChange{{Initial, Connecting}, {Connecting, Connected}} {
		select {
		case evt := <-ch:
			if got := evt.Payload.(StatusChange); got != want {
				t.Errorf("change = %+v, want %+v", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for status change")
		}
	}

	if err := m.Reach(Connected); err != nil {
		t.Errorf("Reach to current status should be a no-op, got %v", err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestChallengeLifecycle(t *testing.T) {
	m := NewMachine(nil)
	if err := m.SetChallenge("2@first"); err != nil {
		t.Fatalf("SetChallenge: %v", err)
	}
	if m.Current() != QRPending || m.Challenge() != "2@first" {
		t.Fatalf("state = %s challenge = %q", m.Current(), m.Challenge())
	}

	if err := m.SetChallenge("2@second"); err != nil {
		t.Fatalf("SetChallenge: %v", err)
	}
	if m.Challenge() != "2@second" {
		t.Errorf("challenge = %q, want replaced", m.Challenge())
	}

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if m.Challenge() != "" {
		t.Errorf("challenge should be discarded when leaving qr_pending, got %q", m.Challenge())
	}
}

func TestFail(t *testing.T) {
	m := NewMachine(nil)
	m.Fail("dial refused")
	if m.Current() != Error || m.LastError() != "dial refused" {
		t.Fatalf("state = %s, err = %q", m.Current(), m.LastError())
	}
	m.Fail("still refused")
	if m.LastError() != "still refused" {
		t.Errorf("LastError = %q, want latest", m.LastError())
	}
	if err := m.Transition(Initial); err != nil {
		t.Fatal(err)
	}
	if m.LastError() != "" {
		t.Errorf("LastError should clear after recovery, got %q", m.LastError())
	}
}
