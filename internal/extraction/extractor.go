// Package extraction turns a photo of a donated item into a structured
// inventory record using a vision model.
package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/reuse/internal/gemini"
	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/metrics"
	"github.com/kalambet/reuse/internal/validate"
)

const (
	retryBudget     = 2
	temperature     = 0.4
	maxOutputTokens = 8192
	defaultMIME     = "image/jpeg"

	// ReasonInvalidInput is reported for an empty image.
	ReasonInvalidInput = "invalid-input"
)

// Generator calls the model. Implemented by *gemini.Client.
type Generator interface {
	HasAPIKey() bool
	Generate(ctx context.Context, model string, req gemini.GenerateRequest, maxRetries int) (*gemini.GenerateResponse, error)
}

// Error is returned by Extract. Reason is one of the gemini.Reason*
// constants or ReasonInvalidInput.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// record is the shape the model must return. Pointers distinguish a
// missing key from an empty value.
type record struct {
	Name      *string   `json:"name" validate:"required"`
	Category  *string   `json:"category" validate:"required"`
	Condition *string   `json:"condition" validate:"required"`
	Summary   *string   `json:"summary" validate:"required"`
	Keywords  *[]string `json:"keywords" validate:"required"`
}

// Extractor builds item records from photos.
type Extractor struct {
	client Generator
	model  string
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewExtractor creates an Extractor calling model through client.
func NewExtractor(client Generator, model string) *Extractor {
	return &Extractor{
		client: client,
		model:  model,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
}

// Extract asks the model to describe the item in image. The returned record
// carries a fresh id and createdAt and is not saved anywhere. An empty
// mimeType means image/jpeg.
func (e *Extractor) Extract(ctx context.Context, image []byte, mimeType, note string) (inventory.Item, error) {
	it, err := e.extract(ctx, image, mimeType, note)
	result := "ok"
	if err != nil {
		var xe *Error
		if errors.As(err, &xe) {
			result = xe.Reason
		}
	}
	metrics.PipelineCalls.WithLabelValues("extract", result).Inc()
	return it, err
}

func (e *Extractor) extract(ctx context.Context, image []byte, mimeType, note string) (inventory.Item, error) {
	if !e.client.HasAPIKey() {
		return inventory.Item{}, &Error{Reason: gemini.ReasonMissingAPIKey, Err: gemini.ErrMissingAPIKey}
	}
	if len(image) == 0 {
		return inventory.Item{}, &Error{Reason: ReasonInvalidInput, Err: errors.New("image is empty")}
	}
	if mimeType == "" {
		mimeType = defaultMIME
	}

	req := gemini.GenerateRequest{
		Contents: []gemini.Content{{Parts: []gemini.Part{
			gemini.TextPart(BuildPrompt(note)),
			gemini.ImagePart(mimeType, base64.StdEncoding.EncodeToString(image)),
		}}},
		GenerationConfig: gemini.GenerationConfig{
			Temperature:     gemini.Temperature(temperature),
			MaxOutputTokens: maxOutputTokens,
		},
	}

	resp, err := e.client.Generate(ctx, e.model, req, retryBudget)
	if err != nil {
		return inventory.Item{}, fail(err)
	}

	text, err := resp.Text()
	if err != nil {
		e.logger.Warn("extraction response violates contract", "error", err)
		return inventory.Item{}, fail(err)
	}

	rec, err := parseRecord(text)
	if err != nil {
		e.logger.Warn("extraction output rejected", "error", err, "text", truncate(text, 200))
		return inventory.Item{}, fail(err)
	}

	return inventory.Item{
		ID:        e.newID(),
		Name:      *rec.Name,
		Category:  *rec.Category,
		Condition: *rec.Condition,
		Summary:   *rec.Summary,
		Keywords:  *rec.Keywords,
		CreatedAt: e.now(),
	}, nil
}

// parseRecord unwraps and decodes model text, then checks that every field
// is present with the right type.
func parseRecord(text string) (record, error) {
	var raw json.RawMessage
	if err := gemini.DecodeJSON(text, &raw); err != nil {
		return record{}, err
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, &gemini.ContractError{Reason: gemini.ReasonSchemaViolation, Detail: err.Error()}
	}
	if err := validate.Struct(&rec); err != nil {
		return record{}, &gemini.ContractError{Reason: gemini.ReasonSchemaViolation, Detail: validate.Summary(err)}
	}
	return rec, nil
}

func fail(err error) *Error {
	return &Error{Reason: gemini.Reason(err), Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
