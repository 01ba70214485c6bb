package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/reuse/internal/imaging"
	"github.com/kalambet/reuse/internal/intake"
	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/storage"
)

const (
	maxUploadSize   = imaging.MaxInputBytes + 1<<20
	pingTimeout     = 15 * time.Second
	maxNoteLength   = 2000
	multipartMemory = 8 << 20
)

type searchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

// readPhoto parses a multipart upload with an "image" file and optional
// "note" field and normalizes the photo. It writes the error response itself.
func readPhoto(w http.ResponseWriter, r *http.Request, maxDim int) (*imaging.Result, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "upload exceeds %d bytes", tooLarge.Limit)
			return nil, "", false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
		return nil, "", false
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "image file is required")
		return nil, "", false
	}
	defer file.Close()

	note := r.FormValue("note")
	if len(note) > maxNoteLength {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "note exceeds %d characters", maxNoteLength)
		return nil, "", false
	}

	res, err := imaging.Process(file, maxDim)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupported) {
			writeError(w, "image", err)
		} else {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		}
		return nil, "", false
	}
	return res, note, true
}

// handleAnalyze extracts a record from an uploaded photo. Without save=true
// the record is returned but not stored.
func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		photo, note, ok := readPhoto(w, r, deps.MaxImageDimension)
		if !ok {
			return
		}

		it, err := deps.Extractor.Extract(r.Context(), photo.Data, photo.MIME, note)
		if err != nil {
			writeError(w, "extraction", err)
			return
		}

		save, _ := strconv.ParseBool(r.FormValue("save"))
		if !save {
			writeJSON(w, http.StatusOK, it)
			return
		}

		img := storage.Image{ID: uuid.NewString(), MIME: photo.MIME, Data: photo.Data}
		if err := deps.Drafts.SaveImage(img); err != nil {
			writeError(w, "image", err)
			return
		}
		it.ImageURL = intake.ImageURL(img.ID)
		added, err := deps.Items.Add(inventory.FromItem(it))
		if err != nil {
			if derr := deps.Drafts.DeleteImage(img.ID); derr != nil {
				slog.Warn("removing image of unsaved item", "image_id", img.ID, "error", derr)
			}
			writeError(w, "item", err)
			return
		}
		writeJSON(w, http.StatusCreated, added)
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		matches, err := deps.Searcher.SearchInventory(r.Context(), deps.Items, req.Query, req.Category)
		if err != nil {
			writeError(w, "search", err)
			return
		}
		if matches == nil {
			matches = []inventory.Match{}
		}
		writeJSON(w, http.StatusOK, matches)
	}
}

func handleModelStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		writeJSON(w, http.StatusOK, map[string]bool{
			"configured": deps.Model.HasAPIKey(),
			"ok":         deps.Model.Ping(ctx),
		})
	}
}
