// Package fallback keeps a local, untrusted snapshot of the last admin that
// logged in while the identity provider issued no session.
package fallback

import (
	"errors"
	"sync"
	"time"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// ErrInvalidKey is returned for keys that cannot name a record.
var ErrInvalidKey = errors.New("fallback: invalid key")

// Record mirrors the public fields of an admin principal.
type Record struct {
	AdminID     uint             `json:"admin_id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Role        models.AdminRole `json:"role"`
	Permissions []string         `json:"permissions"`
	SavedAt     time.Time        `json:"saved_at"`
}

// NewRecord snapshots admin.
func NewRecord(admin *models.AdminUser, at time.Time) *Record {
	return &Record{
		AdminID:     admin.ID,
		Email:       admin.Email,
		Name:        admin.Name,
		Role:        admin.Role,
		Permissions: append([]string(nil), admin.Permissions...),
		SavedAt:     at,
	}
}

// Store persists records keyed by browser context. Load returns (nil, nil) on a miss.
type Store interface {
	Save(key string, rec *Record) error
	Load(key string) (*Record, error)
	Delete(key string) error
}

// Scoped binds a Store to one browser context.
type Scoped struct {
	store Store
	key   string
}

// Scope returns the view of store for key.
func Scope(store Store, key string) *Scoped {
	return &Scoped{store: store, key: key}
}

func (s *Scoped) Save(rec *Record) error { return s.store.Save(s.key, rec) }
func (s *Scoped) Load() (*Record, error) { return s.store.Load(s.key) }
func (s *Scoped) Delete() error          { return s.store.Delete(s.key) }

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Save(key string, rec *Record) error {
	if key == "" {
		return ErrInvalidKey
	}
	cp := *rec
	cp.Permissions = append([]string(nil), rec.Permissions...)

	m.mu.Lock()
	m.records[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(key string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	rec.Permissions = append([]string(nil), rec.Permissions...)
	return &rec, nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
