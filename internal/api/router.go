// Package api exposes the inventory over a local HTTP API and an MCP server.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/reuse/internal/intake"
	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/retrieval"
	"github.com/kalambet/reuse/internal/storage"
)

// ItemStore is the record store. Implemented by *inventory.Store.
type ItemStore interface {
	All() []inventory.Item
	Get(id string) (inventory.Item, error)
	ByCategory(category string) []inventory.Item
	Categories() []string
	Add(in inventory.NewItem) (inventory.Item, error)
	Update(id string, p inventory.Patch) (inventory.Item, error)
	Delete(id string) (bool, error)
	Reset() ([]inventory.Item, error)
}

// Extractor builds records from photos. Implemented by *extraction.Extractor.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType, note string) (inventory.Item, error)
}

// Searcher runs semantic search. Implemented by *retrieval.Searcher.
type Searcher interface {
	SearchInventory(ctx context.Context, store retrieval.Lister, query, category string) ([]inventory.Match, error)
}

// Pinger reports model reachability. Implemented by *gemini.Client.
type Pinger interface {
	HasAPIKey() bool
	Ping(ctx context.Context) bool
}

// DraftStore persists photos and intake drafts. Implemented by *storage.Store.
type DraftStore interface {
	intake.DraftStore
	ListDrafts() ([]storage.Draft, error)
	GetImage(id string) (storage.Image, error)
}

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Items     ItemStore
	Drafts    DraftStore
	Extractor Extractor
	Searcher  Searcher
	Model     Pinger
	Token     string
	// MaxImageDimension bounds the longer side of stored photos.
	MaxImageDimension int
}

// NewAppHandler returns the full HTTP API. /health and /metrics are open;
// everything else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(requestLogger)

		r.Get("/items", handleListItems(deps))
		r.Post("/items", handleAddItem(deps))
		r.Post("/items/reset", handleResetItems(deps))
		r.Get("/items/{id}", handleGetItem(deps))
		r.Patch("/items/{id}", handleUpdateItem(deps))
		r.Delete("/items/{id}", handleDeleteItem(deps))
		r.Get("/categories", handleCategories(deps))

		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/search", handleSearch(deps))
		r.Get("/model/status", handleModelStatus(deps))

		r.Post("/intake", handleIntake(deps))
		r.Get("/drafts", handleListDrafts(deps))
		r.Get("/drafts/{id}", handleGetDraft(deps))
		r.Post("/drafts/{id}/confirm", handleConfirmDraft(deps))
		r.Delete("/drafts/{id}", handleDiscardDraft(deps))
		r.Get("/images/{id}", handleGetImage(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status())
	})
}
