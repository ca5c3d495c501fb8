package sync

import (
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/transport"
	"go.uber.org/zap"
)

// DefaultSyncTimeout bounds how long the syncing indicator stays on without
// a snapshot arriving.
const DefaultSyncTimeout = 20 * time.Second

// Merge folds a remote directory snapshot into the cached contacts.
//
// Only individual identities are kept. Cached contacts keep their position
// and new identities are appended in snapshot order. A remote name replaces
// the cached one only when it is non-empty. Unread counters and previews
// are never touched.
func Merge(cache []store.Contact, snapshot []transport.RawContact) []store.Contact {
	out := make([]store.Contact, 0, len(cache)+len(snapshot))
	index := make(map[string]int, len(cache)+len(snapshot))

	for _, c := range cache {
		if !transport.IsIndividual(c.JID) {
			continue
		}
		if i, ok := index[c.JID]; ok {
			out[i] = c
			continue
		}
		index[c.JID] = len(out)
		out = append(out, c)
	}

	for _, raw := range snapshot {
		key := raw.Key()
		if !transport.IsIndividual(key) {
			continue
		}
		name := raw.BestName()
		if i, ok := index[key]; ok {
			if name != "" {
				out[i].Name = name
			}
			if out[i].Phone == "" {
				out[i].Phone = transport.PhoneFromJID(key)
			}
			continue
		}
		index[key] = len(out)
		out = append(out, store.Contact{
			JID:   key,
			Name:  name,
			Phone: transport.PhoneFromJID(key),
		})
	}
	return out
}

// SyncResult is the payload of bus.KindContactsSynced.
type SyncResult struct {
	Total int
	Added int
}

// Reconciler keeps the persisted contact directory in step with remote
// snapshots and tracks whether a sync is outstanding.
type Reconciler struct {
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	syncing bool
	gen     uint64
	timer   *time.Timer
}

// NewReconciler creates a reconciler. A non-positive timeout uses DefaultSyncTimeout.
func NewReconciler(db *store.DB, b *bus.Bus, logger *zap.Logger, timeout time.Duration) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	return &Reconciler{db: db, bus: b, logger: logger, timeout: timeout}
}

// BeginSync turns the syncing indicator on and arms the safety timeout. The
// request itself is not cancelled when the timeout fires.
func (r *Reconciler) BeginSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncing = true
	r.gen++
	gen := r.gen
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.timeout, func() { r.expire(gen) })
}

func (r *Reconciler) expire(gen uint64) {
	r.mu.Lock()
	if !r.syncing || r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.syncing = false
	r.timer = nil
	r.mu.Unlock()

	r.logger.Warn("contact sync timed out", zap.Duration("timeout", r.timeout))
	r.bus.Emit(bus.KindSyncTimeout, nil)
}

func (r *Reconciler) endSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncing = false
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Syncing reports whether a sync is outstanding.
func (r *Reconciler) Syncing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncing
}

// Stop disarms any pending timeout.
func (r *Reconciler) Stop() {
	r.endSync()
}

// Merge applies a snapshot to the persisted directory. Snapshots that were
// not a list end the sync and are otherwise ignored.
func (r *Reconciler) Merge(snap transport.ContactSnapshot) (SyncResult, error) {
	r.endSync()
	if !snap.Valid {
		r.logger.Debug("ignoring malformed contact snapshot")
		return SyncResult{}, nil
	}

	cache, err := r.db.ListContacts()
	if err != nil {
		return SyncResult{}, fmt.Errorf("load contacts: %w", err)
	}
	merged := Merge(cache, snap.Contacts)
	if err := r.db.SaveContacts(merged); err != nil {
		return SyncResult{}, fmt.Errorf("save contacts: %w", err)
	}

	res := SyncResult{Total: len(merged), Added: len(merged) - len(cache)}
	if res.Added < 0 {
		res.Added = 0
	}
	r.logger.Info("contacts synced", zap.Int("total", res.Total), zap.Int("added", res.Added))
	r.bus.Emit(bus.KindContactsSynced, res)
	return res, nil
}

// EnsureContact returns the cached contact for jid, creating one with only a
// phone number (and push name, if known) when it is not cached yet.
func (r *Reconciler) EnsureContact(jid, pushName string) (*store.Contact, error) {
	if _, err := r.db.EnsureContact(&store.Contact{
		JID:   jid,
		Name:  pushName,
		Phone: transport.PhoneFromJID(jid),
	}); err != nil {
		return nil, fmt.Errorf("ensure contact: %w", err)
	}
	c, err := r.db.GetContact(jid)
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// DeleteContact removes a contact on explicit operator request.
func (r *Reconciler) DeleteContact(jid string) (bool, error) {
	return r.db.DeleteContact(jid)
}
