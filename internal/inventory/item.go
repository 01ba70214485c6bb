// Package inventory holds the item model and the single-writer record store.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("item not found")
	// ErrDuplicateID is returned by Add when a caller-supplied id is taken.
	ErrDuplicateID = errors.New("item id already exists")
	// ErrPersist wraps storage write failures; the change was not saved.
	ErrPersist = errors.New("saving inventory failed")
)

// Item is one donated item in the inventory.
type Item struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	Condition string     `json:"condition"`
	Summary   string     `json:"summary"`
	Keywords  []string   `json:"keywords"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Match is a copy of an Item annotated by a search. It is never stored.
type Match struct {
	Item
	MatchReason string `json:"matchReason"`
	IsTopMatch  bool   `json:"isTopMatch"`
}

// NewItem is the input to Store.Add. ID and CreatedAt are generated when zero.
type NewItem struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Condition string    `json:"condition"`
	Summary   string    `json:"summary"`
	Keywords  []string  `json:"keywords"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// FromItem converts an extracted or exported record into Add input.
func FromItem(it Item) NewItem {
	return NewItem{
		ID:        it.ID,
		Name:      it.Name,
		Category:  it.Category,
		Condition: it.Condition,
		Summary:   it.Summary,
		Keywords:  slices.Clone(it.Keywords),
		ImageURL:  it.ImageURL,
		CreatedAt: it.CreatedAt,
	}
}

// Patch lists the fields to change on Update. Nil fields are left alone.
type Patch struct {
	Name      *string   `json:"name,omitempty"`
	Category  *string   `json:"category,omitempty"`
	Condition *string   `json:"condition,omitempty"`
	Summary   *string   `json:"summary,omitempty"`
	Keywords  *[]string `json:"keywords,omitempty"`
	ImageURL  *string   `json:"imageUrl,omitempty"`
}

// Apply copies the set fields of p onto it.
func (p Patch) Apply(it *Item) {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Category != nil {
		it.Category = *p.Category
	}
	if p.Condition != nil {
		it.Condition = *p.Condition
	}
	if p.Summary != nil {
		it.Summary = *p.Summary
	}
	if p.Keywords != nil {
		it.Keywords = slices.Clone(*p.Keywords)
	}
	if p.ImageURL != nil {
		it.ImageURL = *p.ImageURL
	}
}

// Clone returns a deep copy of it.
func (it Item) Clone() Item {
	out := it
	out.Keywords = slices.Clone(it.Keywords)
	if it.UpdatedAt != nil {
		t := *it.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

const documentVersion = 1

type document struct {
	Version int    `json:"version"`
	Items   []Item `json:"items"`
}

// MarshalItems encodes items as a versioned inventory document.
func MarshalItems(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(document{Version: documentVersion, Items: items})
}

// UnmarshalItems decodes an inventory document. A bare JSON array from
// unversioned data is accepted too.
func UnmarshalItems(data []byte) ([]Item, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []Item
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decoding inventory: %w", err)
		}
		return items, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding inventory: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported inventory version %d", doc.Version)
	}
	return doc.Items, nil
}
