package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/storage"
)

// ErrDraftNotReady is returned when confirming a draft that has no record yet.
var ErrDraftNotReady = errors.New("draft is not ready")

// DraftStore abstracts draft persistence.
type DraftStore interface {
	SaveImage(img storage.Image) error
	DeleteImage(id string) error
	CreateDraft(d storage.Draft, job storage.Job) error
	GetDraft(id string) (storage.Draft, error)
	DeleteDraft(id string) error
}

// ItemAdder adds confirmed records. Implemented by *inventory.Store.
type ItemAdder interface {
	Add(in inventory.NewItem) (inventory.Item, error)
}

// Draft is the API view of a storage draft.
type Draft struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Note      string          `json:"note,omitempty"`
	ImageURL  string          `json:"imageUrl"`
	Item      *inventory.Item `json:"item,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

// ToView converts a stored draft, decoding its record when present.
func ToView(d storage.Draft) (Draft, error) {
	v := Draft{
		ID:        d.ID,
		Status:    d.Status,
		Note:      d.Note,
		ImageURL:  ImageURL(d.ImageID),
		Error:     d.Error,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.ItemJSON != "" {
		var it inventory.Item
		if err := json.Unmarshal([]byte(d.ItemJSON), &it); err != nil {
			return Draft{}, fmt.Errorf("decoding draft %s: %w", d.ID, err)
		}
		v.Item = &it
	}
	return v, nil
}

// Submit stores a normalized photo and queues it for extraction.
func Submit(store DraftStore, image []byte, mimeType, note string) (storage.Draft, error) {
	img := storage.Image{ID: uuid.NewString(), MIME: mimeType, Data: image}
	if err := store.SaveImage(img); err != nil {
		return storage.Draft{}, fmt.Errorf("saving image: %w", err)
	}

	d := storage.Draft{
		ID:      uuid.NewString(),
		Status:  storage.DraftPending,
		Note:    note,
		ImageID: img.ID,
	}
	payload, err := json.Marshal(jobPayload{DraftID: d.ID, ImageID: img.ID, Note: note})
	if err != nil {
		return storage.Draft{}, err
	}
	job := storage.Job{ID: uuid.NewString(), Type: JobType, PayloadJSON: string(payload)}

	if err := store.CreateDraft(d, job); err != nil {
		if derr := store.DeleteImage(img.ID); derr != nil {
			slog.Warn("removing image of uncreated draft", "image_id", img.ID, "error", derr)
		}
		return storage.Draft{}, fmt.Errorf("creating draft: %w", err)
	}
	return d, nil
}

// Confirm adds a ready draft's record to the inventory, applying the
// volunteer's corrections, and removes the draft. The photo is kept since
// the record references it.
func Confirm(store DraftStore, items ItemAdder, id string, edits inventory.Patch) (inventory.Item, error) {
	d, err := store.GetDraft(id)
	if err != nil {
		return inventory.Item{}, err
	}
	if d.Status != storage.DraftReady {
		return inventory.Item{}, fmt.Errorf("%w: status %s", ErrDraftNotReady, d.Status)
	}

	var it inventory.Item
	if err := json.Unmarshal([]byte(d.ItemJSON), &it); err != nil {
		return inventory.Item{}, fmt.Errorf("decoding draft %s: %w", id, err)
	}
	edits.Apply(&it)

	added, err := items.Add(inventory.FromItem(it))
	if err != nil {
		return inventory.Item{}, err
	}
	if err := store.DeleteDraft(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return added, fmt.Errorf("removing confirmed draft: %w", err)
	}
	return added, nil
}

// Discard removes a draft and its photo.
func Discard(store DraftStore, id string) error {
	d, err := store.GetDraft(id)
	if err != nil {
		return err
	}
	if err := store.DeleteDraft(id); err != nil {
		return err
	}
	if err := store.DeleteImage(d.ImageID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("removing draft image: %w", err)
	}
	return nil
}
