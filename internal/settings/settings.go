// Package settings persists operator preferences and bot configuration as
// JSON values in the store's settings table.
package settings

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wabot/internal/bus"
	"github.com/matheus3301/wabot/internal/store"
	"github.com/oklog/ulid/v2"
)

// Keys.
const (
	KeyIdentity    = "session_identity"
	KeyEndpoint    = "backend_endpoint"
	KeyCredentials = "ai_credentials"
	KeyActiveTab   = "active_tab"
	KeyBotConfig   = "bot_config"
)

// Tabs an operator can have open.
var Tabs = []string{"chats", "contacts", "blast", "history", "settings"}

var (
	ErrInvalidTab         = errors.New("unknown tab")
	ErrInvalidKnowledge   = errors.New("knowledge item needs a category and content")
	ErrKnowledgeNotFound  = errors.New("knowledge item not found")
	ErrIdentityIncomplete = errors.New("identity needs a name")
)

// KnowledgeItem is one fact the assistant may quote, optionally carrying
// media and reply buttons that go out with the answer.
type KnowledgeItem struct {
	ID        string   `json:"id"`
	Category  string   `json:"category"`
	Content   string   `json:"content"`
	MediaURL  string   `json:"media_url,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	Buttons   []string `json:"buttons,omitempty"`
}

// BotConfig describes the business and how auto-replies behave.
type BotConfig struct {
	BusinessName     string          `json:"business_name"`
	Description      string          `json:"description"`
	AutoReplyEnabled bool            `json:"auto_reply_enabled"`
	AutoReplyPrompt  string          `json:"auto_reply_prompt"`
	KnowledgeBase    []KnowledgeItem `json:"knowledge_base"`
}

// FindKnowledge returns the item with id, if any.
func (c BotConfig) FindKnowledge(id string) (KnowledgeItem, bool) {
	if id == "" {
		return KnowledgeItem{}, false
	}
	for _, k := range c.KnowledgeBase {
		if k.ID == id {
			return k, true
		}
	}
	return KnowledgeItem{}, false
}

// DefaultBotConfig is used until an operator saves one.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		BusinessName:     "Toko Saya",
		Description:      "UMKM Bergerak di bidang jasa/produk",
		AutoReplyEnabled: true,
		AutoReplyPrompt:  "Ramah dan membantu",
		KnowledgeBase:    []KnowledgeItem{},
	}
}

// Credentials hold the AI provider key.
type Credentials struct {
	APIKey string `json:"api_key"`
}

// Identity is the operator currently at the console.
type Identity struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Changed is the payload of bus.KindSettings.
type Changed struct {
	Key string
}

// Store reads and writes settings. Reads always hit the database so changes
// made through any path are visible immediately.
type Store struct {
	db  *store.DB
	bus *bus.Bus

	// mu serializes read-modify-write of the bot config.
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a settings store.
func New(db *store.DB, b *bus.Bus) *Store {
	return &Store{db: db, bus: b, entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (s *Store) get(key string, v any) (bool, error) {
	raw, ok, err := s.db.GetSetting(key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.db.PutSetting(key, string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	s.bus.Emit(bus.KindSettings, Changed{Key: key})
	return nil
}

// Bot returns the saved bot config or the defaults.
func (s *Store) Bot() (BotConfig, error) {
	cfg := DefaultBotConfig()
	if _, err := s.get(KeyBotConfig, &cfg); err != nil {
		return DefaultBotConfig(), err
	}
	if cfg.KnowledgeBase == nil {
		cfg.KnowledgeBase = []KnowledgeItem{}
	}
	return cfg, nil
}

// SetBot replaces the bot config.
func (s *Store) SetBot(cfg BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range cfg.KnowledgeBase {
		if cfg.KnowledgeBase[i].ID == "" {
			cfg.KnowledgeBase[i].ID = s.newID()
		}
	}
	return s.put(KeyBotConfig, cfg)
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// AddKnowledge appends an item and returns it with its assigned id.
func (s *Store) AddKnowledge(item KnowledgeItem) (KnowledgeItem, error) {
	item.Category = strings.TrimSpace(item.Category)
	item.Content = strings.TrimSpace(item.Content)
	if item.Category == "" || item.Content == "" {
		return KnowledgeItem{}, ErrInvalidKnowledge
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.Bot()
	if err != nil {
		return KnowledgeItem{}, err
	}
	item.ID = s.newID()
	cfg.KnowledgeBase = append(cfg.KnowledgeBase, item)
	if err := s.put(KeyBotConfig, cfg); err != nil {
		return KnowledgeItem{}, err
	}
	return item, nil
}

// RemoveKnowledge deletes the item with id.
func (s *Store) RemoveKnowledge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.Bot()
	if err != nil {
		return err
	}
	kept := cfg.KnowledgeBase[:0]
	found := false
	for _, k := range cfg.KnowledgeBase {
		if k.ID == id {
			found = true
			continue
		}
		kept = append(kept, k)
	}
	if !found {
		return ErrKnowledgeNotFound
	}
	cfg.KnowledgeBase = kept
	return s.put(KeyBotConfig, cfg)
}

// Credentials returns the stored AI key. Without one, GEMINI_API_KEY and then
// API_KEY from the environment are used.
func (s *Store) Credentials() (Credentials, error) {
	var c Credentials
	if _, err := s.get(KeyCredentials, &c); err != nil {
		return Credentials{}, err
	}
	if c.APIKey == "" {
		for _, env := range []string{"GEMINI_API_KEY", "API_KEY"} {
			if v := os.Getenv(env); v != "" {
				c.APIKey = v
				break
			}
		}
	}
	return c, nil
}

func (s *Store) SetCredentials(c Credentials) error {
	c.APIKey = strings.TrimSpace(c.APIKey)
	return s.put(KeyCredentials, c)
}

// Endpoint returns the last backend endpoint opened, or "" if none.
func (s *Store) Endpoint() (string, error) {
	var e string
	_, err := s.get(KeyEndpoint, &e)
	return e, err
}

func (s *Store) SetEndpoint(endpoint string) error {
	return s.put(KeyEndpoint, endpoint)
}

// Tab returns the active tab, "chats" by default.
func (s *Store) Tab() (string, error) {
	tab := Tabs[0]
	if _, err := s.get(KeyActiveTab, &tab); err != nil {
		return Tabs[0], err
	}
	return tab, nil
}

func (s *Store) SetTab(tab string) error {
	for _, t := range Tabs {
		if t == tab {
			return s.put(KeyActiveTab, tab)
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidTab, tab)
}

// Identity returns the signed-in operator; ok is false if nobody is.
func (s *Store) Identity() (Identity, bool, error) {
	var id Identity
	ok, err := s.get(KeyIdentity, &id)
	return id, ok, err
}

func (s *Store) SetIdentity(id Identity) error {
	id.Name = strings.TrimSpace(id.Name)
	if id.Name == "" {
		return ErrIdentityIncomplete
	}
	if id.Role == "" {
		id.Role = "operator"
	}
	return s.put(KeyIdentity, id)
}

// ClearIdentity signs the operator out.
func (s *Store) ClearIdentity() error {
	if err := s.db.DeleteSetting(KeyIdentity); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	s.bus.Emit(bus.KindSettings, Changed{Key: KeyIdentity})
	return nil
}
