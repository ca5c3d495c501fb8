// Package campaign sends one text to many recipients, keeps named recipient
// groups, and records an insert-only history of dispatches.
package campaign

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/matheus3301/wabot/internal/transport"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// AllContactsLabel names dispatches to the whole contact cache.
const AllContactsLabel = "All contacts"

const resendSuffix = " (Resend)"

var (
	ErrEmptyMessage    = errors.New("campaign message is empty")
	ErrEmptyRecipients = errors.New("campaign has no recipients")
	ErrGroupNotFound   = errors.New("campaign group not found")
	ErrRecordNotFound  = errors.New("campaign record not found")
	ErrEmptyGroupName  = errors.New("campaign group needs a name")
)

// Blaster hands a batch to the backend. Ready reports whether a batch would
// be accepted right now.
type Blaster interface {
	Ready() error
	Blast(ctx context.Context, b transport.Blast) error
}

// TxObserver records delivery progress.
type TxObserver interface {
	Observe(id, status, message string)
}

// Target selects recipients. A zero Target addresses every cached contact.
type Target struct {
	GroupID string
}

// Service dispatches campaigns and manages groups and history.
type Service struct {
	db      *store.DB
	blaster Blaster
	bus     *bus.Bus
	txlog   TxObserver
	logger  *zap.Logger
	now     func() time.Time

	// mu serializes dispatches so history order matches call order.
	mu      sync.Mutex
	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a campaign service.
func New(db *store.DB, blaster Blaster, b *bus.Bus, tx TxObserver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		blaster: blaster,
		bus:     b,
		txlog:   tx,
		logger:  logger.Named("campaign"),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Service) newID() string {
	return s.newIDAt(s.now())
}

func (s *Service) newIDAt(t time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// CorrelationID is the transmission log key of a dispatch.
func CorrelationID(recordID string) string {
	return "blast:" + recordID
}

// Dispatch sends text to the recipients selected by target. Nothing is
// recorded unless the backend accepted the batch.
func (s *Service) Dispatch(ctx context.Context, text string, target Target) (*store.BlastRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	label, recipients, err := s.resolve(target)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, label, text, recipients)
}

// Resend dispatches a past record again as a new record. The original is
// left untouched.
func (s *Service) Resend(ctx context.Context, recordID string) (*store.BlastRecord, error) {
	rec, err := s.db.GetBlast(recordID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	if len(rec.Recipients) == 0 {
		return nil, ErrEmptyRecipients
	}
	return s.dispatch(ctx, rec.CampaignLabel+resendSuffix, rec.Message, rec.Recipients)
}

func (s *Service) resolve(target Target) (string, []string, error) {
	if target.GroupID == "" {
		contacts, err := s.db.ListContacts()
		if err != nil {
			return "", nil, fmt.Errorf("list contacts: %w", err)
		}
		ids := make([]string, 0, len(contacts))
		for _, c := range contacts {
			ids = append(ids, c.JID)
		}
		if len(ids) == 0 {
			return "", nil, ErrEmptyRecipients
		}
		return AllContactsLabel, ids, nil
	}

	g, err := s.db.GetGroup(target.GroupID)
	if err != nil {
		return "", nil, fmt.Errorf("get group: %w", err)
	}
	if g == nil {
		return "", nil, ErrGroupNotFound
	}
	if len(g.Members) == 0 {
		return "", nil, ErrEmptyRecipients
	}
	return g.Name, g.Members, nil
}

func (s *Service) dispatch(ctx context.Context, label, text string, recipients []string) (*store.BlastRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blaster.Ready(); err != nil {
		return nil, fmt.Errorf("dispatch blast: %w", err)
	}

	ts := s.now().UnixMilli()
	latest, err := s.db.LatestBlastTime()
	if err != nil {
		return nil, fmt.Errorf("latest blast time: %w", err)
	}
	if ts < latest {
		ts = latest
	}
	id := s.newIDAt(time.UnixMilli(ts))
	corr := CorrelationID(id)
	s.observe(corr, "pending", fmt.Sprintf("%s: mengirim ke %d kontak", label, len(recipients)))

	if err := s.blaster.Blast(ctx, transport.Blast{ID: corr, Targets: recipients, Text: text}); err != nil {
		s.observe(corr, "error", fmt.Sprintf("%s: %v", label, err))
		s.logger.Error("blast failed", zap.Error(err), zap.String("campaign", label))
		return nil, fmt.Errorf("dispatch blast: %w", err)
	}

	rec := &store.BlastRecord{
		ID:            id,
		CampaignLabel: label,
		Message:       text,
		Recipients:    append([]string(nil), recipients...),
		DispatchedAt:  ts,
		Status:        store.BlastCompleted,
	}
	if err := s.db.InsertBlast(rec); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	s.logger.Info("blast dispatched", zap.String("id", id), zap.String("campaign", label), zap.Int("recipients", len(recipients)))
	s.bus.Emit(bus.KindDispatched, *rec)
	return rec, nil
}

// History returns past dispatches, newest first.
func (s *Service) History() ([]store.BlastRecord, error) {
	return s.db.ListBlasts()
}

// DeleteRecord removes one whole history record.
func (s *Service) DeleteRecord(id string) error {
	ok, err := s.db.DeleteBlast(id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if !ok {
		return ErrRecordNotFound
	}
	return nil
}

func (s *Service) observe(id, status, message string) {
	if s.txlog != nil {
		s.txlog.Observe(id, status, message)
	}
}
