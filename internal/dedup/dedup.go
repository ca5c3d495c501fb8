// Package dedup suppresses repeated delivery of the same inbound message.
package dedup

import (
	"strings"
	"sync"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/matheus3301/wabot/internal/transport"
)

// DefaultCapacity bounds how many message ids are remembered.
const DefaultCapacity = 300

// Set is a bounded set that evicts its oldest member once full.
type Set[K comparable] struct {
	mu    sync.Mutex
	items *orderedmap.OrderedMap[K, struct{}]
	cap   int
}

// NewSet creates a set holding at most capacity keys. Non-positive
// capacities fall back to DefaultCapacity.
func NewSet[K comparable](capacity int) *Set[K] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set[K]{
		items: orderedmap.NewOrderedMapWithCapacity[K, struct{}](capacity),
		cap:   capacity,
	}
}

// Add inserts k and reports whether it was new. Re-adding a present key does
// not refresh its position.
func (s *Set[K]) Add(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items.Has(k) {
		return false
	}
	for s.items.Len() >= s.cap {
		oldest := s.items.Front()
		s.items.Delete(oldest.Key)
	}
	s.items.Set(k, struct{}{})
	return true
}

func (s *Set[K]) Contains(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Has(k)
}

func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

func (s *Set[K]) Cap() int { return s.cap }

// Filter decides which inbound messages enter a conversation. Message ids
// are only unique within a chat, so the remembered key is (chat, id).
type Filter struct {
	seen *Set[messageKey]
}

type messageKey struct {
	chat, id string
}

// NewFilter creates a filter remembering up to capacity messages.
func NewFilter(capacity int) *Filter {
	return &Filter{seen: NewSet[messageKey](capacity)}
}

// Eligible reports whether msg is an incoming text message at all. Own
// echoes, blank text and messages without an id or chat are not.
func (f *Filter) Eligible(msg transport.InboundMessage) bool {
	if msg.FromMe || msg.ID == "" || msg.ChatJID == "" {
		return false
	}
	return strings.TrimSpace(msg.Text) != ""
}

// Seen reports whether the message was remembered and not yet evicted.
func (f *Filter) Seen(chatJID, id string) bool {
	return f.seen.Contains(messageKey{chatJID, id})
}

// Remember records the message as delivered. Callers remember a message
// only once it is safely stored, so a failed attempt can be redelivered.
func (f *Filter) Remember(chatJID, id string) {
	f.seen.Add(messageKey{chatJID, id})
}

// Accept is Eligible plus a check-and-remember in one step.
func (f *Filter) Accept(msg transport.InboundMessage) bool {
	if !f.Eligible(msg) {
		return false
	}
	return f.seen.Add(messageKey{msg.ChatJID, msg.ID})
}
