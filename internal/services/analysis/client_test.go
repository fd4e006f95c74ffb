package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"murmur/internal/services"
)

func completionResponse(t *testing.T, content string) []byte {
	t.Helper()
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return body
}

func TestAnalyzeRendersNotes(t *testing.T) {
	notesJSON := `{"summary":"Weekly sync recap.","key_points":["Ship date moved"],"action_items":["Update the roadmap"],"open_questions":[]}`

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[1].Content, "standup.m4a") {
			t.Errorf("user prompt missing file name: %q", req.Messages[1].Content)
		}
		w.Write(completionResponse(t, notesJSON))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-test"})
	recorded := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	notes, err := client.Analyze(context.Background(), "we talked about the ship date", "standup.m4a", recorded)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization header: %q", gotAuth)
	}
	for _, want := range []string{"# Notes: standup.m4a", "2026-03-14", "Weekly sync recap.", "Ship date moved", "Update the roadmap"} {
		if !strings.Contains(notes, want) {
			t.Fatalf("notes missing %q:\n%s", want, notes)
		}
	}
}

func TestAnalyzeToleratesCodeFencedJSON(t *testing.T) {
	fenced := "```json\n{\"summary\":\"Fenced but valid.\"}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionResponse(t, fenced))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	notes, err := client.Analyze(context.Background(), "transcript", "a.m4a", time.Now())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(notes, "Fenced but valid.") {
		t.Fatalf("summary missing:\n%s", notes)
	}
}

func TestAnalyzeRejectsMissingSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionResponse(t, `{"summary":""}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Analyze(context.Background(), "transcript", "a.m4a", time.Now())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestAnalyzeRequiresTranscriptAndKey(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key"})
	if _, err := client.Analyze(context.Background(), "   ", "a.m4a", time.Now()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty transcript, got %v", err)
	}

	client = NewClient(Config{})
	if _, err := client.Analyze(context.Background(), "text", "a.m4a", time.Now()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without key, got %v", err)
	}
}

func TestAnalyzeClassifiesHTTPErrors(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusForbidden, services.ErrConfiguration},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusInternalServerError, services.ErrTransient},
		{http.StatusBadRequest, services.ErrExternalTool},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
		_, err := client.Analyze(context.Background(), "transcript", "a.m4a", time.Now())
		server.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionResponse(t, `{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestDecodeModelJSONVariants(t *testing.T) {
	type target struct {
		Summary string `json:"summary"`
	}
	cases := map[string]string{
		"bare":       `{"summary":"plain"}`,
		"fenced":     "```json\n{\"summary\":\"plain\"}\n```",
		"surrounded": `Here you go: {"summary":"plain"} hope that helps!`,
	}
	for name, content := range cases {
		var got target
		if err := DecodeModelJSON(content, &got); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.Summary != "plain" {
			t.Fatalf("%s: summary %q", name, got.Summary)
		}
	}

	var got target
	if err := DecodeModelJSON("not json at all", &got); err == nil {
		t.Fatal("expected decode failure")
	}
}
