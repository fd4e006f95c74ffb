package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/services"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:           baseURL,
		Token:             "drive-token",
		FolderID:          "inbox-folder",
		ProcessedFolderID: "done-folder",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestListPagesAndFiltersNonAudio(t *testing.T) {
	pages := map[string]string{
		"": `{"files":[
			{"id":"voice_1","name":"a.m4a","mimeType":"audio/mp4","size":"1024","createdTime":"2026-03-14T09:00:00Z"},
			{"id":"doc_1","name":"minutes.pdf","mimeType":"application/pdf","size":"2048","createdTime":"2026-03-14T09:05:00Z"}
		],"nextPageToken":"page-2"}`,
		"page-2": `{"files":[
			{"id":"voice_2","name":"b.mp4","mimeType":"video/mp4","size":"4096","createdTime":"2026-03-14T10:00:00Z"}
		]}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer drive-token" {
			t.Errorf("authorization: %q", got)
		}
		if q := r.URL.Query().Get("q"); q != "'inbox-folder' in parents and trashed=false" {
			t.Errorf("query: %q", q)
		}
		w.Write([]byte(pages[r.URL.Query().Get("pageToken")]))
	}))
	defer server.Close()

	files, err := newTestClient(t, server.URL).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 audio files, got %+v", files)
	}
	if files[0].ID != "voice_1" || files[1].ID != "voice_2" {
		t.Fatalf("unexpected files: %+v", files)
	}
	if files[0].Size != 1024 {
		t.Fatalf("size not parsed: %d", files[0].Size)
	}
	if files[0].Created.IsZero() {
		t.Fatal("created time not parsed")
	}
}

func TestDownloadWritesDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/voice_1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("alt"); got != "media" {
			t.Errorf("alt query: %q", got)
		}
		w.Write([]byte("audio payload"))
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "staging", "voice_1_a.m4a")
	if err := newTestClient(t, server.URL).Download(context.Background(), "voice_1", destPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	content, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(content) != "audio payload" {
		t.Fatalf("content: %q", content)
	}

	// No leftover temp files.
	entries, err := os.ReadDir(filepath.Dir(destPath))
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, got %v", entries)
	}
}

func TestRelocateMovesAndRenames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method: %s", r.Method)
		}
		if r.URL.Path != "/files/voice_1" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("addParents"); got != "done-folder" {
			t.Errorf("addParents: %q", got)
		}
		if got := r.URL.Query().Get("removeParents"); got != "inbox-folder" {
			t.Errorf("removeParents: %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["name"] != "2026-03-14 - a.m4a" {
			t.Errorf("name: %q", body["name"])
		}
		w.Write([]byte(`{"id":"voice_1"}`))
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).Relocate(context.Background(), "voice_1", "2026-03-14 - a.m4a"); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
}

func TestRelocateRequiresProcessedFolder(t *testing.T) {
	client, err := New(Config{Token: "t", FolderID: "inbox"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = client.Relocate(context.Background(), "voice_1", "new name")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusBadGateway, services.ErrTransient},
		{http.StatusConflict, services.ErrExternalTool},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := newTestClient(t, server.URL).List(context.Background())
		server.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestHealthChecksWatchedFolder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/inbox-folder" {
			t.Errorf("path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":"inbox-folder"}`))
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestNewRequiresTokenAndFolder(t *testing.T) {
	if _, err := New(Config{FolderID: "inbox"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without token, got %v", err)
	}
	if _, err := New(Config{Token: "t"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without folder, got %v", err)
	}
}
