package inventory

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/reuse/internal/storage"
)

type memDocs struct {
	mu      sync.Mutex
	docs    map[string][]byte
	loadErr error
	saveErr error
	saves   int
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string][]byte)}
}

func (m *memDocs) LoadDocument(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	data, ok := m.docs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memDocs) SaveDocument(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func newTestStore(t *testing.T, db Persister) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(db, WithClock(clock.Now), WithIDGenerator(sequentialIDs())), clock
}

func strPtr(s string) *string { return &s }

func TestStore_SeedsDefaultsOnFirstRead(t *testing.T) {
	db := newMemDocs()
	s, _ := newTestStore(t, db)

	items := s.All()
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}
	if items[0].ID != "1" || items[4].ID != "5" {
		t.Errorf("ids = %s..%s, want 1..5", items[0].ID, items[4].ID)
	}
	if _, ok := db.docs[DocumentKey]; !ok {
		t.Fatal("defaults were not persisted")
	}

	s.All()
	if db.saves != 1 {
		t.Errorf("saves = %d, want 1 (seed only once)", db.saves)
	}
}

func TestStore_SequentialConsistency(t *testing.T) {
	s, _ := newTestStore(t, newMemDocs())

	added, err := s.Add(NewItem{Name: "Kettle", Category: "Home > Kitchen", Condition: "Good", Keywords: []string{"kettle"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := s.Get(added.ID)
	if err != nil || !reflect.DeepEqual(got, added) {
		t.Fatalf("Get after Add = %+v, %v; want %+v", got, err, added)
	}

	updated, err := s.Update(added.ID, Patch{Condition: strPtr("Worn")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = s.Get(added.ID)
	if got.Condition != "Worn" || !reflect.DeepEqual(got, updated) {
		t.Errorf("Get after Update = %+v, want %+v", got, updated)
	}

	if ok, err := s.Delete(added.ID); !ok || err != nil {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, err := s.Get(added.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteReportsRemoval(t *testing.T) {
	s, _ := newTestStore(t, newMemDocs())

	ok, err := s.Delete("3")
	if err != nil || !ok {
		t.Fatalf("first Delete = %v, %v; want true", ok, err)
	}
	ok, err = s.Delete("3")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v; want false", ok, err)
	}
	if ok, _ := s.Delete("missing"); ok {
		t.Error("Delete of unknown id = true")
	}
	if n := len(s.All()); n != 4 {
		t.Errorf("len(All) = %d, want 4", n)
	}
}

func TestStore_EmptyUpdateStampsOnly(t *testing.T) {
	s, clock := newTestStore(t, newMemDocs())

	before, _ := s.Get("4")
	if before.UpdatedAt != nil {
		t.Fatal("fresh record has updatedAt")
	}

	first, err := s.Update("4", Patch{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if first.UpdatedAt == nil || !first.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("updatedAt = %v, want %v", first.UpdatedAt, clock.Now())
	}
	rest := first
	rest.UpdatedAt = nil
	if !reflect.DeepEqual(rest, before) {
		t.Errorf("fields changed by empty update:\n got %+v\nwant %+v", rest, before)
	}

	// Clock going backwards must not move updatedAt backwards.
	clock.Set(clock.Now().Add(-time.Hour))
	second, err := s.Update("4", Patch{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if second.UpdatedAt.Before(*first.UpdatedAt) {
		t.Errorf("updatedAt decreased: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if !second.CreatedAt.Equal(before.CreatedAt) || second.ID != before.ID {
		t.Error("update changed id or createdAt")
	}
}

func TestStore_UpdateUnknownID(t *testing.T) {
	db := newMemDocs()
	s, _ := newTestStore(t, db)
	s.All()
	saves := db.saves

	if _, err := s.Update("nope", Patch{Name: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if db.saves != saves {
		t.Error("Update of unknown id wrote to storage")
	}
}

func TestStore_CategoriesDistinct(t *testing.T) {
	s, _ := newTestStore(t, newMemDocs())
	for i := 0; i < 3; i++ {
		if _, err := s.Add(NewItem{Name: fmt.Sprintf("toy %d", i), Category: "Toys > Stuffed Animals"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got := s.Categories()
	want := []string{
		"Toys > Stuffed Animals",
		"Toys > Educational Toys",
		"Books > Children's Books",
		"Home > Lighting",
		"School Supplies > Backpacks",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Categories() = %v, want %v", got, want)
	}

	if n := len(s.ByCategory("Toys > Stuffed Animals")); n != 4 {
		t.Errorf("ByCategory = %d items, want 4", n)
	}
	if n := len(s.ByCategory("Toys")); n != 0 {
		t.Errorf("ByCategory(prefix) = %d items, want 0 (exact match)", n)
	}
}

func TestStore_AddGeneratesAndHonorsCallerFields(t *testing.T) {
	s, clock := newTestStore(t, newMemDocs())

	gen, err := s.Add(NewItem{Name: "Chair"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if gen.ID != "gen-1" || !gen.CreatedAt.Equal(clock.Now()) || gen.UpdatedAt != nil {
		t.Errorf("generated item = %+v", gen)
	}

	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	own, err := s.Add(NewItem{ID: "custom", Name: "Table", CreatedAt: created})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if own.ID != "custom" || !own.CreatedAt.Equal(created) {
		t.Errorf("caller fields not kept: %+v", own)
	}

	if _, err := s.Add(NewItem{ID: "custom", Name: "Dup"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate id error = %v, want ErrDuplicateID", err)
	}
}

func TestStore_AddCopiesKeywords(t *testing.T) {
	s, _ := newTestStore(t, newMemDocs())
	kw := []string{"a", "b"}
	it, err := s.Add(NewItem{Name: "x", Keywords: kw})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	kw[0] = "mutated"
	got, _ := s.Get(it.ID)
	if got.Keywords[0] != "a" {
		t.Errorf("stored keywords alias caller slice: %v", got.Keywords)
	}
}

func TestStore_CorruptDataServesDefaults(t *testing.T) {
	db := newMemDocs()
	db.docs[DocumentKey] = []byte(`{not json`)
	s, _ := newTestStore(t, db)

	items := s.All()
	if !reflect.DeepEqual(items, Defaults()) {
		t.Errorf("All() on corrupt data = %d items, want defaults", len(items))
	}
	if string(db.docs[DocumentKey]) != `{not json` {
		t.Error("corrupt data was overwritten by a read")
	}
}

func TestStore_ReadFailureServesDefaults(t *testing.T) {
	db := newMemDocs()
	db.loadErr = errors.New("disk gone")
	s, _ := newTestStore(t, db)

	if n := len(s.All()); n != 5 {
		t.Errorf("All() = %d items, want 5 defaults", n)
	}
	if db.saves != 0 {
		t.Error("read failure triggered a write")
	}
}

func TestStore_WriteFailureReported(t *testing.T) {
	db := newMemDocs()
	s, _ := newTestStore(t, db)
	s.All()

	db.saveErr = errors.New("read-only")
	if _, err := s.Add(NewItem{Name: "Lost"}); !errors.Is(err, ErrPersist) {
		t.Fatalf("Add error = %v, want ErrPersist", err)
	}
	if _, err := s.Update("1", Patch{Name: strPtr("x")}); !errors.Is(err, ErrPersist) {
		t.Errorf("Update error = %v, want ErrPersist", err)
	}
	if ok, err := s.Delete("1"); ok || !errors.Is(err, ErrPersist) {
		t.Errorf("Delete = %v, %v; want false, ErrPersist", ok, err)
	}
	if _, err := s.Reset(); !errors.Is(err, ErrPersist) {
		t.Errorf("Reset error = %v, want ErrPersist", err)
	}

	db.saveErr = nil
	items := s.All()
	if len(items) != 5 || items[0].Name != "Children's Teddy Bear" {
		t.Errorf("failed writes became visible: %+v", items)
	}
}

func TestStore_Reset(t *testing.T) {
	s, _ := newTestStore(t, newMemDocs())
	s.Delete("1")
	s.Add(NewItem{Name: "extra"})

	got, err := s.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !reflect.DeepEqual(got, Defaults()) || !reflect.DeepEqual(s.All(), Defaults()) {
		t.Error("Reset did not restore defaults")
	}
}

func TestStore_ConcurrentWritersLoseNothing(t *testing.T) {
	s := NewStore(newMemDocs())
	s.All()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Add(NewItem{Name: fmt.Sprintf("item %d", i)}); err != nil {
				t.Errorf("Add: %v", err)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Update("2", Patch{}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(s.All()); got != 5+n {
		t.Errorf("len(All) = %d, want %d", got, 5+n)
	}
}

func TestStore_WithSQLite(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	added, err := s.Add(NewItem{Name: "Bike", Category: "Sports > Cycling"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened := NewStore(db)
	got, err := reopened.Get(added.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Bike" || len(reopened.All()) != 6 {
		t.Errorf("persisted state = %+v", got)
	}
}

func TestMarshalItems_RoundTrip(t *testing.T) {
	updated := time.Date(2025, 2, 2, 8, 0, 0, 0, time.UTC)
	items := []Item{
		{ID: "a", Name: "No image", Category: "X", Condition: "Good", Summary: "s", Keywords: []string{"k"}, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "b", Name: "Full", Category: "Y > Z", Condition: "Worn", Summary: "t", Keywords: []string{}, ImageURL: "/images/abc", CreatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), UpdatedAt: &updated},
	}

	data, err := MarshalItems(items)
	if err != nil {
		t.Fatalf("MarshalItems: %v", err)
	}
	first, _, _ := strings.Cut(string(data), `"id":"b"`)
	if strings.Contains(first, "imageUrl") || strings.Contains(first, "updatedAt") {
		t.Errorf("absent optional fields were encoded: %s", first)
	}

	got, err := UnmarshalItems(data)
	if err != nil {
		t.Fatalf("UnmarshalItems: %v", err)
	}
	if !reflect.DeepEqual(got, items) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, items)
	}
}

func TestUnmarshalItems_Formats(t *testing.T) {
	legacy := `[{"id":"1","name":"n","category":"c","condition":"Good","summary":"s","keywords":["x"],"createdAt":"2024-01-15T10:30:00Z"}]`
	items, err := UnmarshalItems([]byte(legacy))
	if err != nil || len(items) != 1 || items[0].ID != "1" {
		t.Fatalf("legacy array = %+v, %v", items, err)
	}

	if _, err := UnmarshalItems([]byte(`{"version":2,"items":[]}`)); err == nil {
		t.Error("unknown version accepted")
	}
	if _, err := UnmarshalItems([]byte(`garbage`)); err == nil {
		t.Error("garbage accepted")
	}
}
