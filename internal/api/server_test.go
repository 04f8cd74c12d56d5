package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/threadfold/internal/processor"
	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

type fixedStats processor.Stats

func (f fixedStats) Stats() processor.Stats { return processor.Stats(f) }

func newTestServer(strict bool, token string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seed := thread.Turn{Speaker: thread.SpeakerSystem, Blocks: []thread.Block{thread.TextBlock("")}}
	engine := thread.NewEngine(seed, thread.Options{Strict: strict}, logger)
	return NewServer(8760, token, engine, fixedStats{Received: 4, Folded: 3}, logger)
}

const batchBody = `[
	{"uuid": "u1", "parentUuid": null, "message": {"role": "user", "content": "<hi>"}, "timestamp": "t1"},
	{"uuid": "a1", "parentUuid": "u1", "message": {"role": "assistant", "model": "claude-sonnet-4", "content": [{"type": "text", "text": "hello"}]}, "timestamp": "t2"},
	{"uuid": "x1", "parentUuid": "gone", "message": {"role": "user", "content": "orphan"}}
]`

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(false, "secret")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(false, "")

	req := httptest.NewRequest("GET", "/api/v1/threadfold/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Service string          `json:"service"`
		Bus     processor.Stats `json:"bus"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Service != "threadfold" {
		t.Errorf("expected service threadfold, got %q", body.Service)
	}
	if body.Bus.Received != 4 || body.Bus.Folded != 3 {
		t.Errorf("unexpected bus stats %+v", body.Bus)
	}
}

func TestFoldEndpoint(t *testing.T) {
	srv := newTestServer(false, "")

	req := httptest.NewRequest("POST", "/api/v1/fold?path_id=-proj&batch_id=sess-1", strings.NewReader(batchBody))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"<hi>"`) {
		t.Errorf("expected unescaped text in %s", w.Body.String())
	}
	if got := w.Header().Get("X-Dropped-Records"); got != "1" {
		t.Errorf("X-Dropped-Records = %q, want 1", got)
	}

	var conv thread.Conversation
	if err := json.Unmarshal(w.Body.Bytes(), &conv); err != nil {
		t.Fatalf("failed to decode conversation: %v", err)
	}
	if conv.Metadata.BatchID != "sess-1" || conv.Metadata.PathID != "-proj" {
		t.Errorf("metadata ids = %q/%q", conv.Metadata.PathID, conv.Metadata.BatchID)
	}
	if conv.Metadata.TurnCount != 3 || len(conv.Turns) != 3 {
		t.Errorf("expected 3 turns, got %d", len(conv.Turns))
	}
	if conv.Metadata.Timestamp != "t2" {
		t.Errorf("timestamp = %q, want t2", conv.Metadata.Timestamp)
	}
}

func TestFoldEndpoint_GeneratesBatchID(t *testing.T) {
	srv := newTestServer(false, "")

	req := httptest.NewRequest("POST", "/api/v1/fold", strings.NewReader(batchBody))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	var conv thread.Conversation
	if err := json.Unmarshal(w.Body.Bytes(), &conv); err != nil {
		t.Fatalf("failed to decode conversation: %v", err)
	}
	if len(conv.Metadata.BatchID) != 36 {
		t.Errorf("expected a generated uuid, got %q", conv.Metadata.BatchID)
	}
}

func TestFoldEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		strict bool
		body   string
		want   int
	}{
		{"not an array", false, `{"uuid": "u1"}`, http.StatusBadRequest},
		{"invalid json", false, `[{`, http.StatusBadRequest},
		{"empty batch", false, `[]`, http.StatusNoContent},
		{"no recognized roles", false, `[{"uuid": "s1", "type": "summary"}]`, http.StatusNoContent},
		{"strict violation", true, batchBody, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.strict, "")
			req := httptest.NewRequest("POST", "/api/v1/fold?batch_id=b", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestFoldEndpoint_BodyReadErrors(t *testing.T) {
	tests := []struct {
		name string
		body io.Reader
		want int
	}{
		{"over the limit", strings.NewReader(batchBody), http.StatusRequestEntityTooLarge},
		{"read failure", failingBody{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(false, "")
			srv.maxBody = 16
			req := httptest.NewRequest("POST", "/api/v1/fold?batch_id=b", tt.body)
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestFoldEndpoint_StrictDiagnostics(t *testing.T) {
	srv := newTestServer(true, "")

	req := httptest.NewRequest("POST", "/api/v1/fold?batch_id=b", strings.NewReader(batchBody))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	var body struct {
		Diagnostics []thread.Diagnostic `json:"diagnostics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Diagnostics) != 1 || body.Diagnostics[0].Kind != thread.DiagDanglingParent {
		t.Errorf("unexpected diagnostics %+v", body.Diagnostics)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(false, "secret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/threadfold/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(false, "")

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
