package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/reuse/internal/gemini"
	"github.com/kalambet/reuse/internal/transport"
)

// mockGenerator implements Generator for testing.
type mockGenerator struct {
	hasKey  bool
	text    string
	resp    *gemini.GenerateResponse
	err     error
	calls   int
	lastReq gemini.GenerateRequest
	retries int
}

func (m *mockGenerator) HasAPIKey() bool { return m.hasKey }

func (m *mockGenerator) Generate(ctx context.Context, model string, req gemini.GenerateRequest, maxRetries int) (*gemini.GenerateResponse, error) {
	m.calls++
	m.lastReq = req
	m.retries = maxRetries
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &gemini.GenerateResponse{Candidates: []gemini.Candidate{
		{Content: &gemini.Content{Parts: []gemini.Part{{Text: m.text}}}},
	}}, nil
}

var fixedNow = time.Date(2025, 5, 4, 9, 30, 0, 0, time.UTC)

func newTestExtractor(g Generator) *Extractor {
	e := NewExtractor(g, "gemini-2.5-flash")
	e.now = func() time.Time { return fixedNow }
	e.newID = func() string { return "new-id" }
	return e
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var xe *Error
	if !errors.As(err, &xe) {
		t.Fatalf("error = %v (%T), want *extraction.Error", err, err)
	}
	if xe.Error() == "" {
		t.Error("error message is empty")
	}
	return xe.Reason
}

func TestExtract_FencedJSON(t *testing.T) {
	m := &mockGenerator{
		hasKey: true,
		text:   "```json\n{\"name\":\"Lamp\",\"category\":\"Home\",\"condition\":\"Good\",\"summary\":\"...\",\"keywords\":[\"lamp\"]}\n```",
	}
	got, err := newTestExtractor(m).Extract(context.Background(), []byte("jpeg-bytes"), "image/png", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got.ID != "new-id" || !got.CreatedAt.Equal(fixedNow) || got.UpdatedAt != nil {
		t.Errorf("synthesized fields = id %q createdAt %v updatedAt %v", got.ID, got.CreatedAt, got.UpdatedAt)
	}
	if got.Name != "Lamp" || got.Category != "Home" || got.Condition != "Good" || got.Summary != "..." {
		t.Errorf("record = %+v", got)
	}
	if !reflect.DeepEqual(got.Keywords, []string{"lamp"}) {
		t.Errorf("Keywords = %v", got.Keywords)
	}

	if m.retries != 2 {
		t.Errorf("retry budget = %d, want 2", m.retries)
	}
	parts := m.lastReq.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil {
		t.Fatalf("parts = %+v, want text + inline image", parts)
	}
	if parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("mime_type = %q", parts[1].InlineData.MIMEType)
	}
	if parts[1].InlineData.Data != base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")) {
		t.Errorf("data = %q", parts[1].InlineData.Data)
	}
	cfg := m.lastReq.GenerationConfig
	if cfg.Temperature == nil || *cfg.Temperature != 0.4 || cfg.MaxOutputTokens != 8192 {
		t.Errorf("generationConfig = %+v", cfg)
	}
}

func TestExtract_NoteInPrompt(t *testing.T) {
	m := &mockGenerator{hasKey: true, text: `{"name":"a","category":"b","condition":"c","summary":"d","keywords":[]}`}
	e := newTestExtractor(m)

	if _, err := e.Extract(context.Background(), []byte{1}, "", "missing one wheel"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.HasSuffix(m.lastReq.Contents[0].Parts[0].Text, "Note: missing one wheel") {
		t.Errorf("prompt does not end with the note: %q", m.lastReq.Contents[0].Parts[0].Text)
	}
	if m.lastReq.Contents[0].Parts[1].InlineData.MIMEType != "image/jpeg" {
		t.Error("empty mime type should default to image/jpeg")
	}

	if _, err := e.Extract(context.Background(), []byte{1}, "", "  "); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.HasSuffix(m.lastReq.Contents[0].Parts[0].Text, "Note: None") {
		t.Error("blank note should render as None")
	}
}

func TestBuildPrompt_ForbidsCommercialFields(t *testing.T) {
	p := BuildPrompt("")
	for _, want := range []string{`"name"`, `"category"`, `"condition"`, `"summary"`, `"keywords"`, "no prices, donor information, or marketing language"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExtract_PreconditionsSkipNetwork(t *testing.T) {
	noKey := &mockGenerator{hasKey: false}
	_, err := newTestExtractor(noKey).Extract(context.Background(), []byte{1}, "", "")
	if reasonOf(t, err) != gemini.ReasonMissingAPIKey || !errors.Is(err, gemini.ErrMissingAPIKey) {
		t.Errorf("missing key error = %v", err)
	}

	empty := &mockGenerator{hasKey: true}
	_, err = newTestExtractor(empty).Extract(context.Background(), nil, "", "")
	if reasonOf(t, err) != ReasonInvalidInput {
		t.Errorf("empty image error = %v", err)
	}

	if noKey.calls+empty.calls != 0 {
		t.Errorf("model called %d times, want 0", noKey.calls+empty.calls)
	}
}

func TestExtract_ContractViolations(t *testing.T) {
	tests := []struct {
		name   string
		mock   *mockGenerator
		reason string
	}{
		{
			name:   "no candidates",
			mock:   &mockGenerator{hasKey: true, resp: &gemini.GenerateResponse{Candidates: []gemini.Candidate{}}},
			reason: gemini.ReasonMalformedResponse,
		},
		{
			name:   "no parts",
			mock:   &mockGenerator{hasKey: true, resp: &gemini.GenerateResponse{Candidates: []gemini.Candidate{{Content: &gemini.Content{}}}}},
			reason: gemini.ReasonMalformedResponse,
		},
		{
			name:   "empty text",
			mock:   &mockGenerator{hasKey: true, text: ""},
			reason: gemini.ReasonMalformedResponse,
		},
		{
			name:   "not json",
			mock:   &mockGenerator{hasKey: true, text: "It looks like a lamp."},
			reason: gemini.ReasonInvalidJSON,
		},
		{
			name:   "missing keywords",
			mock:   &mockGenerator{hasKey: true, text: `{"name":"a","category":"b","condition":"c","summary":"d"}`},
			reason: gemini.ReasonSchemaViolation,
		},
		{
			name:   "keywords not strings",
			mock:   &mockGenerator{hasKey: true, text: `{"name":"a","category":"b","condition":"c","summary":"d","keywords":[1,2]}`},
			reason: gemini.ReasonSchemaViolation,
		},
		{
			name:   "array instead of object",
			mock:   &mockGenerator{hasKey: true, text: `[{"name":"a"}]`},
			reason: gemini.ReasonSchemaViolation,
		},
		{
			name:   "upstream message",
			mock:   &mockGenerator{hasKey: true, err: &gemini.APIError{StatusCode: 400, Message: "Image too large"}},
			reason: gemini.ReasonUpstreamMessage,
		},
		{
			name:   "no error body",
			mock:   &mockGenerator{hasKey: true, err: &gemini.APIError{StatusCode: 500}},
			reason: gemini.ReasonNoResponseBody,
		},
		{
			name:   "transport",
			mock:   &mockGenerator{hasKey: true, err: &gemini.TransportError{Err: errors.New("connection refused")}},
			reason: gemini.ReasonTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := newTestExtractor(tt.mock).Extract(context.Background(), []byte{1}, "", "")
			if err == nil {
				t.Fatalf("Extract succeeded with %+v", it)
			}
			if got := reasonOf(t, err); got != tt.reason {
				t.Errorf("reason = %q, want %q (err = %v)", got, tt.reason, err)
			}
			if it.ID != "" {
				t.Error("failed extraction returned a record")
			}
		})
	}
}

func TestExtract_UpstreamMessageSurfaces(t *testing.T) {
	m := &mockGenerator{hasKey: true, err: &gemini.APIError{StatusCode: 400, Message: "API key not valid"}}
	_, err := newTestExtractor(m).Extract(context.Background(), []byte{1}, "", "")
	if err.Error() != "API key not valid" {
		t.Errorf("Error() = %q, want upstream message", err.Error())
	}
}

func TestExtract_AgainstGeminiServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/gemini-2.5-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if _, ok := req["contents"]; !ok {
			t.Error("request has no contents")
		}
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	client := gemini.NewClient("key",
		gemini.WithBaseURL(srv.URL),
		gemini.WithSender(transport.NewWithSleeper(func(context.Context, time.Duration) error { return nil })),
	)
	_, err := NewExtractor(client, "gemini-2.5-flash").Extract(context.Background(), []byte{1}, "", "")
	if reasonOf(t, err) != gemini.ReasonMalformedResponse {
		t.Errorf("error = %v, want malformed-response", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (contract errors are not retried)", calls.Load())
	}
}
