package gemini

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Text returns the text of the first part of the first candidate. Missing
// candidates, a candidate without parts, or empty text are contract violations.
func (r *GenerateResponse) Text() (string, error) {
	if r == nil || len(r.Candidates) == 0 {
		return "", &ContractError{Reason: ReasonMalformedResponse, Detail: "no candidates"}
	}
	c := r.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 {
		return "", &ContractError{Reason: ReasonMalformedResponse, Detail: "candidate missing content.parts"}
	}
	text := c.Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", &ContractError{Reason: ReasonMalformedResponse, Detail: "no text content"}
	}
	return text, nil
}

// UnwrapFence strips a Markdown code fence, optionally tagged json, from
// model output. Text outside the first fenced block is discarded.
func UnwrapFence(text string) string {
	s := strings.TrimSpace(text)
	if _, after, ok := strings.Cut(s, "```json"); ok {
		inner, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(inner)
	}
	if _, after, ok := strings.Cut(s, "```"); ok {
		inner, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(inner)
	}
	return s
}

// DecodeJSON unwraps text and decodes exactly one JSON value into v.
func DecodeJSON(text string, v any) error {
	s := UnwrapFence(text)
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(v); err != nil {
		return &ContractError{Reason: ReasonInvalidJSON, Detail: err.Error()}
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return &ContractError{Reason: ReasonInvalidJSON, Detail: "unexpected data after JSON value"}
	}
	return nil
}

// CompactJSON renders v without whitespace for embedding in prompts.
func CompactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
