// Package retrieval ranks inventory records against a natural-language
// query using a text model.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/kalambet/reuse/internal/gemini"
	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/metrics"
	"github.com/kalambet/reuse/internal/validate"
)

const (
	retryBudget     = 3
	temperature     = 0.3
	maxOutputTokens = 8192

	// ReasonEmptyQuery is reported for a blank query.
	ReasonEmptyQuery = "empty-query"
)

// Generator calls the model. Implemented by *gemini.Client.
type Generator interface {
	HasAPIKey() bool
	Generate(ctx context.Context, model string, req gemini.GenerateRequest, maxRetries int) (*gemini.GenerateResponse, error)
}

// Lister reads records from the inventory. Implemented by *inventory.Store.
type Lister interface {
	All() []inventory.Item
	ByCategory(category string) []inventory.Item
}

// Error is returned by Search. Reason is one of the gemini.Reason*
// constants or ReasonEmptyQuery.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// matchEntry.ID stays raw: entries without a string id are dropped like
// unknown ids.
type matchEntry struct {
	ID         json.RawMessage `json:"id"`
	Reason     string          `json:"reason"`
	IsTopMatch bool            `json:"isTopMatch"`
}

type searchResponse struct {
	Matches *[]matchEntry `json:"matches" validate:"required,dive"`
}

// Searcher performs semantic search over a candidate set.
type Searcher struct {
	client Generator
	model  string
	logger *slog.Logger
}

// NewSearcher creates a Searcher calling model through client.
func NewSearcher(client Generator, model string) *Searcher {
	return &Searcher{client: client, model: model, logger: slog.Default()}
}

// Search asks the model which candidates fit query. Results follow the
// model's order; ids the model invents are dropped. Each result is a copy,
// so candidates are never modified.
func (s *Searcher) Search(ctx context.Context, query string, candidates []inventory.Item) ([]inventory.Match, error) {
	matches, err := s.search(ctx, query, candidates)
	result := "ok"
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			result = se.Reason
		}
	}
	metrics.PipelineCalls.WithLabelValues("search", result).Inc()
	return matches, err
}

// SearchInventory searches one snapshot of store, narrowed to category when
// it is not empty.
func (s *Searcher) SearchInventory(ctx context.Context, store Lister, query, category string) ([]inventory.Match, error) {
	var candidates []inventory.Item
	if category == "" {
		candidates = store.All()
	} else {
		candidates = store.ByCategory(category)
	}
	return s.Search(ctx, query, candidates)
}

func (s *Searcher) search(ctx context.Context, query string, candidates []inventory.Item) ([]inventory.Match, error) {
	if !s.client.HasAPIKey() {
		return nil, &Error{Reason: gemini.ReasonMissingAPIKey, Err: gemini.ErrMissingAPIKey}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &Error{Reason: ReasonEmptyQuery, Err: errors.New("search query cannot be empty")}
	}
	if len(candidates) == 0 {
		return []inventory.Match{}, nil
	}

	inventoryJSON, err := gemini.CompactJSON(candidates)
	if err != nil {
		return nil, &Error{Reason: gemini.ReasonUnknown, Err: err}
	}

	req := gemini.GenerateRequest{
		Contents: []gemini.Content{{Parts: []gemini.Part{
			gemini.TextPart(BuildPrompt(inventoryJSON, query)),
		}}},
		GenerationConfig: gemini.GenerationConfig{
			Temperature:     gemini.Temperature(temperature),
			MaxOutputTokens: maxOutputTokens,
		},
	}

	resp, err := s.client.Generate(ctx, s.model, req, retryBudget)
	if err != nil {
		return nil, fail(err)
	}

	text, err := resp.Text()
	if err != nil {
		s.logger.Warn("search response violates contract", "error", err)
		return nil, fail(err)
	}

	entries, err := parseMatches(text)
	if err != nil {
		s.logger.Warn("search output rejected", "error", err, "text", truncate(text, 200))
		return nil, fail(err)
	}

	byID := make(map[string]inventory.Item, len(candidates))
	for _, c := range candidates {
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = c
		}
	}

	out := make([]inventory.Match, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		var id string
		if err := json.Unmarshal(e.ID, &id); err != nil {
			dropped++
			continue
		}
		it, ok := byID[id]
		if !ok {
			dropped++
			continue
		}
		out = append(out, inventory.Match{
			Item:        it.Clone(),
			MatchReason: e.Reason,
			IsTopMatch:  e.IsTopMatch,
		})
	}
	if dropped > 0 {
		s.logger.Debug("dropped matches with unknown or invalid ids", "count", dropped)
	}
	return out, nil
}

func parseMatches(text string) ([]matchEntry, error) {
	var raw json.RawMessage
	if err := gemini.DecodeJSON(text, &raw); err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &gemini.ContractError{Reason: gemini.ReasonSchemaViolation, Detail: err.Error()}
	}
	if err := validate.Struct(&resp); err != nil {
		return nil, &gemini.ContractError{Reason: gemini.ReasonSchemaViolation, Detail: validate.Summary(err)}
	}
	return *resp.Matches, nil
}

func fail(err error) *Error {
	return &Error{Reason: gemini.Reason(err), Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
