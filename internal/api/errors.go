package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/reuse/internal/extraction"
	"github.com/kalambet/reuse/internal/gemini"
	"github.com/kalambet/reuse/internal/imaging"
	"github.com/kalambet/reuse/internal/intake"
	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/retrieval"
	"github.com/kalambet/reuse/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

// protocolReason returns the reason carried by an extraction or search error.
func protocolReason(err error) (string, bool) {
	var xe *extraction.Error
	if errors.As(err, &xe) {
		return xe.Reason, true
	}
	var se *retrieval.Error
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

// writeError maps a domain error onto a status code and error envelope.
func writeError(w http.ResponseWriter, what string, err error) {
	if reason, ok := protocolReason(err); ok {
		switch reason {
		case gemini.ReasonMissingAPIKey:
			httpError(w, http.StatusServiceUnavailable, "configuration_error", "%v", err)
		case retrieval.ReasonEmptyQuery, extraction.ReasonInvalidInput:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		default:
			slog.Warn(what+" failed", "reason", reason, "error", err)
			httpError(w, http.StatusBadGateway, "upstream_error", "%v", err)
		}
		return
	}

	switch {
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
	case errors.Is(err, inventory.ErrDuplicateID), errors.Is(err, intake.ErrDraftNotReady):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, imaging.ErrUnsupported):
		httpError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "%v", err)
	case errors.Is(err, inventory.ErrPersist):
		slog.Error(what+" not saved", "error", err)
		httpError(w, http.StatusInternalServerError, "storage_error", "%v", err)
	default:
		slog.Error(what+" failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%s failed: %v", what, err)
	}
}
