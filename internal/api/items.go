package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/validate"
)

const maxRequestBodySize = 1 << 20 // 1MB

// addItemRequest is the body of POST /items.
type addItemRequest struct {
	ID        string     `json:"id"`
	Name      string     `json:"name" validate:"required,max=200"`
	Category  string     `json:"category" validate:"required,max=100"`
	Condition string     `json:"condition"`
	Summary   string     `json:"summary"`
	Keywords  []string   `json:"keywords" validate:"max=50,dive,max=100"`
	ImageURL  string     `json:"imageUrl"`
	CreatedAt *time.Time `json:"createdAt"`
}

func (r addItemRequest) toNewItem() inventory.NewItem {
	in := inventory.NewItem{
		ID:        r.ID,
		Name:      r.Name,
		Category:  r.Category,
		Condition: r.Condition,
		Summary:   r.Summary,
		Keywords:  r.Keywords,
		ImageURL:  r.ImageURL,
	}
	if in.Keywords == nil {
		in.Keywords = []string{}
	}
	if r.CreatedAt != nil {
		in.CreatedAt = r.CreatedAt.UTC()
	}
	return in
}

func handleListItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var items []inventory.Item
		if c := r.URL.Query().Get("category"); c != "" {
			items = deps.Items.ByCategory(c)
		} else {
			items = deps.Items.All()
		}
		if items == nil {
			items = []inventory.Item{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleGetItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		it, err := deps.Items.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, "item", err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func handleAddItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req addItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Category = strings.TrimSpace(req.Category)
		if err := validate.Struct(req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", validate.Summary(err))
			return
		}

		it, err := deps.Items.Add(req.toNewItem())
		if err != nil {
			writeError(w, "item", err)
			return
		}
		writeJSON(w, http.StatusCreated, it)
	}
}

func handleUpdateItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var p inventory.Patch
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		it, err := deps.Items.Update(chi.URLParam(r, "id"), p)
		if err != nil {
			writeError(w, "item", err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	}
}

func handleDeleteItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := deps.Items.Delete(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, "item", err)
			return
		}
		if !removed {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleResetItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Items.Reset()
		if err != nil {
			writeError(w, "inventory reset", err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleCategories(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats := deps.Items.Categories()
		if cats == nil {
			cats = []string{}
		}
		writeJSON(w, http.StatusOK, cats)
	}
}
