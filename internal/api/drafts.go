package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/reuse/internal/intake"
	"github.com/kalambet/reuse/internal/inventory"
)

func handleIntake(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		photo, note, ok := readPhoto(w, r, deps.MaxImageDimension)
		if !ok {
			return
		}

		d, err := intake.Submit(deps.Drafts, photo.Data, photo.MIME, note)
		if err != nil {
			writeError(w, "intake", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     d.ID,
			"status": d.Status,
		})
	}
}

func handleListDrafts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drafts, err := deps.Drafts.ListDrafts()
		if err != nil {
			writeError(w, "drafts", err)
			return
		}
		out := make([]intake.Draft, 0, len(drafts))
		for _, d := range drafts {
			v, err := intake.ToView(d)
			if err != nil {
				writeError(w, "drafts", err)
				return
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetDraft(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Drafts.GetDraft(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, "draft", err)
			return
		}
		v, err := intake.ToView(d)
		if err != nil {
			writeError(w, "draft", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// handleConfirmDraft accepts an optional JSON patch with the volunteer's
// corrections.
func handleConfirmDraft(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var edits inventory.Patch
		if err := json.NewDecoder(r.Body).Decode(&edits); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		it, err := intake.Confirm(deps.Drafts, deps.Items, chi.URLParam(r, "id"), edits)
		if err != nil {
			writeError(w, "draft", err)
			return
		}
		writeJSON(w, http.StatusCreated, it)
	}
}

func handleDiscardDraft(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := intake.Discard(deps.Drafts, chi.URLParam(r, "id")); err != nil {
			writeError(w, "draft", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleGetImage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := deps.Drafts.GetImage(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, "image", err)
			return
		}
		w.Header().Set("Content-Type", img.MIME)
		w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
		w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
		w.Write(img.Data)
	}
}
