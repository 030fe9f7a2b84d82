// Package viewer provides the local HTTP server over produced session
// artifacts: listing, renaming, deleting, and static file serving.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"gemtrail/internal/store"
)

// Config controls the viewer runtime behavior.
type Config struct {
	Addr string
	Dir  string // output directory holding session artifacts
}

// Service serves the viewer API. It takes no process lock: it only ever sees
// complete artifacts because the pipeline publishes them by atomic rename.
type Service struct {
	cfg Config

	mu sync.Mutex
	st *store.Store
}

// New opens the store and returns a viewer service. Callers must Close it.
func New(cfg Config) (*Service, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8700"
	}
	st, err := store.Open(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, st: st}, nil
}

// Close releases the underlying store.
func (s *Service) Close() {
	s.st.Close()
}

// Run serves HTTP until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Printf("gemtrail viewer listening on http://%s", s.cfg.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("viewer http server: %w", err)
	}
}

// Handler assembles the service routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleList)
	mux.HandleFunc("/api/sessions/rename", s.handleRename)
	mux.HandleFunc("/api/sessions/delete", s.handleDelete)
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.Dir)))
	return withCORS(mux)
}

// withCORS adds permissive CORS headers so the local HTML viewer can call the
// API from any origin, and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	artifacts, err := s.st.List()
	s.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if artifacts == nil {
		artifacts = []store.Artifact{}
	}
	writeJSON(w, http.StatusOK, artifacts)
}

type renameRequest struct {
	CurrentFilename string `json:"currentFilename"`
	NewTitle        string `json:"newTitle"`
}

func (s *Service) handleRename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.CurrentFilename == "" {
		http.Error(w, "missing currentFilename", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.NewTitle) == "" {
		http.Error(w, "missing or empty newTitle", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	newName, err := s.st.Rename(stripDirPrefix(req.CurrentFilename), req.NewTitle)
	s.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"newFilename": newName,
		"title":       req.NewTitle,
	})
}

type deleteRequest struct {
	Filename string `json:"filename"`
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Filename == "" {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err := s.st.Remove(stripDirPrefix(req.Filename))
	s.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "session deleted",
	})
}

// stripDirPrefix tolerates clients sending "requests/<name>" style paths.
// Anything that still looks like path traversal is left alone for the store
// to reject.
func stripDirPrefix(name string) string {
	if dir, base, found := strings.Cut(name, "/"); found && dir != ".." && dir != "." && !strings.Contains(base, "/") {
		return base
	}
	return name
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrBadPath), errors.Is(err, store.ErrBadTitle):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
