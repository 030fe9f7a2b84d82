package viewer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gemtrail/internal/model"
	"gemtrail/internal/store"
)

// newTestServer persists the given sessions and serves the viewer over them.
func newTestServer(t *testing.T, sessions map[string][]model.PromptEntry) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for sid, entries := range sessions {
		if _, _, err := st.Persist(sid, "2025-10-30T01:13:48.000Z", entries); err != nil {
			t.Fatal(err)
		}
	}
	st.Close()

	svc, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func entry(sessionID, promptID string) []model.PromptEntry {
	return []model.PromptEntry{{
		Request: map[string]any{"session.id": sessionID, "prompt_id": promptID},
	}}
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func listSessions(t *testing.T, srv *httptest.Server) []store.Artifact {
	t.Helper()
	resp := do(t, http.MethodGet, srv.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var artifacts []store.Artifact
	if err := json.NewDecoder(resp.Body).Decode(&artifacts); err != nil {
		t.Fatal(err)
	}
	return artifacts
}

func TestList(t *testing.T) {
	srv := newTestServer(t, map[string][]model.PromptEntry{
		"sess-1": entry("sess-1", "p1"),
	})

	artifacts := listSessions(t, srv)
	if len(artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(artifacts))
	}
	if artifacts[0].SessionID != "sess-1" {
		t.Errorf("SessionID = %q", artifacts[0].SessionID)
	}
	if artifacts[0].Filename == "" || artifacts[0].Size == 0 {
		t.Errorf("artifact = %+v", artifacts[0])
	}
}

func TestList_Empty(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/api/sessions", nil)
	var artifacts []store.Artifact
	if err := json.NewDecoder(resp.Body).Decode(&artifacts); err != nil {
		t.Fatal(err)
	}
	if artifacts == nil {
		t.Error("empty listing decoded as null, want []")
	}
}

func TestRename(t *testing.T) {
	srv := newTestServer(t, map[string][]model.PromptEntry{
		"sess-1": entry("sess-1", "p1"),
	})
	before := listSessions(t, srv)

	// Clients may send the directory-qualified path; it still resolves.
	resp := do(t, http.MethodPut, srv.URL+"/api/sessions/rename", map[string]string{
		"currentFilename": "requests/" + before[0].Filename,
		"newTitle":        "Fix Login Bug",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename status = %d", resp.StatusCode)
	}

	var body struct {
		Success     bool   `json:"success"`
		NewFilename string `json:"newFilename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.NewFilename != "2025-10-30_01-13-48-fix-login-bug.json" {
		t.Errorf("body = %+v", body)
	}

	after := listSessions(t, srv)
	if after[0].Title != "fix-login-bug" {
		t.Errorf("Title = %q", after[0].Title)
	}
	if after[0].SessionID != "sess-1" {
		t.Errorf("SessionID lost in rename: %q", after[0].SessionID)
	}
}

func TestRename_Errors(t *testing.T) {
	srv := newTestServer(t, map[string][]model.PromptEntry{
		"sess-a": entry("sess-a", "p1"),
		"sess-b": entry("sess-b", "p1"),
	})
	arts := listSessions(t, srv)
	if len(arts) != 2 {
		t.Fatal("setup: want 2 artifacts")
	}

	// Occupy a name so the second rename collides.
	if resp := do(t, http.MethodPut, srv.URL+"/api/sessions/rename", map[string]string{
		"currentFilename": arts[0].Filename, "newTitle": "shared",
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("setup rename status = %d", resp.StatusCode)
	}

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"conflict", map[string]string{"currentFilename": arts[1].Filename, "newTitle": "shared"}, http.StatusConflict},
		{"missing file", map[string]string{"currentFilename": "2025-01-01_00-00-00-ghost.json", "newTitle": "x"}, http.StatusNotFound},
		{"empty title", map[string]string{"currentFilename": arts[1].Filename, "newTitle": "  "}, http.StatusBadRequest},
		{"unsluggable title", map[string]string{"currentFilename": arts[1].Filename, "newTitle": "!!!"}, http.StatusBadRequest},
		{"missing filename", map[string]string{"newTitle": "x"}, http.StatusBadRequest},
		{"path escape", map[string]string{"currentFilename": "../escape.json", "newTitle": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPut, srv.URL+"/api/sessions/rename", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	// Wrong method.
	if resp := do(t, http.MethodGet, srv.URL+"/api/sessions/rename", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET rename status = %d, want 405", resp.StatusCode)
	}
}

func TestDelete(t *testing.T) {
	srv := newTestServer(t, map[string][]model.PromptEntry{
		"sess-1": entry("sess-1", "p1"),
	})
	arts := listSessions(t, srv)

	resp := do(t, http.MethodDelete, srv.URL+"/api/sessions/delete", map[string]string{
		"filename": arts[0].Filename,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	if remaining := listSessions(t, srv); len(remaining) != 0 {
		t.Errorf("artifacts after delete = %d, want 0", len(remaining))
	}

	// Gone now.
	resp = do(t, http.MethodDelete, srv.URL+"/api/sessions/delete", map[string]string{
		"filename": arts[0].Filename,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestDelete_PathEscape(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodDelete, srv.URL+"/api/sessions/delete", map[string]string{
		"filename": "../escape.json",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodOptions, srv.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("Access-Control-Allow-Methods missing")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStaticServing(t *testing.T) {
	srv := newTestServer(t, map[string][]model.PromptEntry{
		"sess-1": entry("sess-1", "p1"),
	})
	arts := listSessions(t, srv)

	resp := do(t, http.MethodGet, srv.URL+"/"+arts[0].Filename, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("static status = %d", resp.StatusCode)
	}
	var entries []model.PromptEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("static body: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}
