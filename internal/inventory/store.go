package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/reuse/internal/metrics"
	"github.com/kalambet/reuse/internal/storage"
)

// DocumentKey is the storage key of the inventory document.
const DocumentKey = "reuse_inventory"

// Persister stores opaque documents by key. LoadDocument returns
// storage.ErrNotFound when nothing was saved under key.
type Persister interface {
	LoadDocument(key string) ([]byte, error)
	SaveDocument(key string, data []byte) error
}

// Store is the process-wide inventory. Every operation holds one mutex for
// its whole read-modify-write span, so concurrent writers never lose updates.
type Store struct {
	mu     sync.Mutex
	db     Persister
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) { s.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store backed by db.
func NewStore(db Persister, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// All returns every record in insertion order. The first read of an empty
// store seeds and returns the default dataset.
func (s *Store) All() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the record with id, or ErrNotFound.
func (s *Store) Get(id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.load() {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, ErrNotFound
}

// ByCategory returns records whose category equals category exactly.
func (s *Store) ByCategory(category string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Item
	for _, it := range s.load() {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// Categories returns each distinct category once, in first-seen order.
func (s *Store) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, it := range s.load() {
		if seen[it.Category] {
			continue
		}
		seen[it.Category] = true
		out = append(out, it.Category)
	}
	return out
}

// Add appends a record. A fresh id and createdAt are generated unless the
// caller supplied them.
func (s *Store) Add(in NewItem) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load()
	it := Item{
		ID:        s.newID(),
		Name:      in.Name,
		Category:  in.Category,
		Condition: in.Condition,
		Summary:   in.Summary,
		Keywords:  in.Keywords,
		ImageURL:  in.ImageURL,
		CreatedAt: s.now(),
	}
	if in.ID != "" {
		it.ID = in.ID
	}
	if !in.CreatedAt.IsZero() {
		it.CreatedAt = in.CreatedAt
	}
	it = it.Clone()

	for _, existing := range items {
		if existing.ID == it.ID {
			return Item{}, fmt.Errorf("adding item %q: %w", it.ID, ErrDuplicateID)
		}
	}

	if err := s.save("add", append(items, it)); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Update applies p to the record with id and stamps updatedAt. An empty
// patch still stamps updatedAt.
func (s *Store) Update(id string, p Patch) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load()
	idx := -1
	for i := range items {
		if items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Item{}, ErrNotFound
	}

	it := items[idx]
	p.Apply(&it)
	stamp := s.now()
	if it.UpdatedAt != nil && stamp.Before(*it.UpdatedAt) {
		stamp = *it.UpdatedAt
	}
	it.UpdatedAt = &stamp
	items[idx] = it

	if err := s.save("update", items); err != nil {
		return Item{}, err
	}
	return it.Clone(), nil
}

// Delete removes the record with id and reports whether one was removed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load()
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return false, nil
	}

	if err := s.save("delete", kept); err != nil {
		return false, err
	}
	return true, nil
}

// Reset overwrites the inventory with the default dataset.
func (s *Store) Reset() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := Defaults()
	if err := s.save("reset", defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

// load reads the persisted records. Missing data is seeded with defaults;
// unreadable or corrupt data yields defaults without touching storage.
// Callers must hold s.mu.
func (s *Store) load() []Item {
	data, err := s.db.LoadDocument(DocumentKey)
	if errors.Is(err, storage.ErrNotFound) {
		defaults := Defaults()
		if err := s.save("seed", defaults); err != nil {
			return defaults
		}
		s.logger.Info("seeded inventory with default items", "count", len(defaults))
		return defaults
	}
	if err != nil {
		s.logger.Error("reading inventory, serving defaults", "error", err)
		return Defaults()
	}

	items, err := UnmarshalItems(data)
	if err != nil {
		s.logger.Error("inventory data is corrupt, serving defaults", "error", err)
		return Defaults()
	}
	return items
}

// save persists items. Callers must hold s.mu.
func (s *Store) save(op string, items []Item) error {
	data, err := MarshalItems(items)
	if err == nil {
		err = s.db.SaveDocument(DocumentKey, data)
	}
	if err != nil {
		metrics.InventoryWrites.WithLabelValues(op, "error").Inc()
		s.logger.Error("saving inventory", "op", op, "error", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	metrics.InventoryWrites.WithLabelValues(op, "ok").Inc()
	return nil
}
