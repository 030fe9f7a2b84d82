package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"gemtrail/internal/model"
)

var (
	// ErrNotFound means the named artifact does not exist.
	ErrNotFound = errors.New("session file not found")
	// ErrExists means the target filename is already taken.
	ErrExists = errors.New("session file already exists")
	// ErrBadPath means the filename would escape the output directory.
	ErrBadPath = errors.New("invalid session filename")
	// ErrBadTitle means a title slugged down to nothing.
	ErrBadTitle = errors.New("title has no usable characters")
)

// Store maps session ids to artifact files in one output directory and
// persists updates atomically. Identity lookups go through the registry when
// available and fall back to probing artifact content.
type Store struct {
	dir      string
	reg      *Registry // nil when the registry could not be opened
	recs     map[string]Record
	warnings []string
}

// Open prepares the output directory, opens the registry, and reconciles it
// against the files actually present. Registry failure is downgraded to a
// warning: the store still works, it just probes artifact content instead.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	s := &Store{dir: dir, recs: make(map[string]Record)}

	reg, err := OpenRegistry(filepath.Join(dir, RegistryFile))
	if err != nil {
		s.warnf("registry unavailable, probing artifact content: %v", err)
	} else {
		s.reg = reg
	}

	if err := s.scan(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the registry.
func (s *Store) Close() {
	if s.reg != nil {
		_ = s.reg.Close()
	}
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Warnings returns non-fatal problems collected so far.
func (s *Store) Warnings() []string {
	return s.warnings
}

func (s *Store) warnf(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

// scan lists the output directory and rebuilds the session-id → file mapping.
// Files the registry does not know are probed once and recorded; registry
// rows whose file vanished are purged.
func (s *Store) scan() error {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", s.dir, err)
	}

	var known map[string]Record
	if s.reg != nil {
		known, err = s.reg.All()
		if err != nil {
			s.warnf("reading registry, probing artifact content: %v", err)
			s.reg = nil
		}
	}
	byFile := make(map[string]Record, len(known))
	for _, rec := range known {
		byFile[rec.Filename] = rec
	}

	s.recs = make(map[string]Record)
	present := make(map[string]bool)
	for _, de := range dirents {
		name := de.Name()
		parsed, ok := ParseFilename(name)
		if !ok || de.IsDir() {
			continue
		}
		present[name] = true

		if rec, ok := byFile[name]; ok {
			s.recs[rec.SessionID] = rec
			continue
		}

		rec := Record{Filename: name, Title: parsed.Title}
		if parsed.Legacy {
			rec.SessionID = parsed.SessionID
		} else if sid := s.probeSessionID(name); sid != "" {
			rec.SessionID = sid
		} else {
			// Identity unrecoverable; the file still lists, but no session
			// can merge into it.
			continue
		}
		s.recs[rec.SessionID] = rec
		if s.reg != nil {
			if err := s.reg.Put(rec); err != nil {
				s.warnf("registry update for %s: %v", name, err)
			}
		}
	}

	// Purge registry rows for deleted files.
	if s.reg != nil {
		for sid, rec := range known {
			if !present[rec.Filename] {
				if err := s.reg.Delete(sid); err != nil {
					s.warnf("registry purge for %s: %v", rec.Filename, err)
				}
			}
		}
	}
	return nil
}

// probeSessionID recovers a session id from artifact content, preferring the
// first entry's request attributes.
func (s *Store) probeSessionID(filename string) string {
	entries, err := s.readEntries(filepath.Join(s.dir, filename))
	if err != nil {
		s.warnf("could not probe %s: %v", filename, err)
		return ""
	}
	for i := range entries {
		if sid := entries[i].SessionID(); sid != "" {
			return sid
		}
	}
	return ""
}

// Lookup reports the artifact filename for a session id, if one exists.
func (s *Store) Lookup(sessionID string) (string, bool) {
	rec, ok := s.recs[sessionID]
	return rec.Filename, ok
}

// Prior loads the persisted entries for a session, or nil when the session has
// no artifact yet. A corrupt or unreadable artifact yields nil plus a warning,
// never an error: the next persist overwrites it.
func (s *Store) Prior(sessionID string) []model.PromptEntry {
	rec, ok := s.recs[sessionID]
	if !ok {
		return nil
	}
	entries, err := s.readEntries(filepath.Join(s.dir, rec.Filename))
	if err != nil {
		s.warnf("could not load %s, treating as empty: %v", rec.Filename, err)
		return nil
	}
	return entries
}

// readEntries reads and validates one artifact file.
func (s *Store) readEntries(path string) ([]model.PromptEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []model.PromptEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if err := validateArtifact(data); err != nil {
		return nil, err
	}
	return entries, nil
}

// Persist atomically writes the full entry sequence for a session. New
// sessions get a filename computed from their first-seen event timestamp and
// the raw session id; existing sessions keep their filename. Output bytes are
// RFC 8785 canonical, so identical logical content always persists
// byte-for-byte identically.
func (s *Store) Persist(sessionID, firstTimestamp string, entries []model.PromptEntry) (filename string, created bool, err error) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return "", false, fmt.Errorf("encoding session %s: %w", sessionID, err)
	}
	payload, err = jcs.Transform(payload)
	if err != nil {
		return "", false, fmt.Errorf("canonicalizing session %s: %w", sessionID, err)
	}

	rec, ok := s.recs[sessionID]
	if !ok {
		created = true
		ts, tsOK := ParseEventTimestamp(firstTimestamp)
		if !tsOK {
			ts = time.Now()
		}
		rec = Record{
			SessionID:      sessionID,
			Filename:       BuildFilename(ts, sessionID, ""),
			FirstTimestamp: firstTimestamp,
		}
	}

	if err := writeFileAtomic(filepath.Join(s.dir, rec.Filename), payload, 0o644); err != nil {
		return "", false, fmt.Errorf("persisting session %s: %w", sessionID, err)
	}

	s.recs[sessionID] = rec
	if s.reg != nil {
		if err := s.reg.Put(rec); err != nil {
			s.warnf("registry update for %s: %v", rec.Filename, err)
		}
	}
	return rec.Filename, created, nil
}

// Artifact describes one session file for listing surfaces.
type Artifact struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Size      int64     `json:"size"`
}

// List rescans the directory and returns all artifacts, newest filename first.
func (s *Store) List() ([]Artifact, error) {
	if err := s.scan(); err != nil {
		return nil, err
	}

	byFile := make(map[string]string, len(s.recs))
	for sid, rec := range s.recs {
		byFile[rec.Filename] = sid
	}

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", s.dir, err)
	}

	var artifacts []Artifact
	for _, de := range dirents {
		name := de.Name()
		parsed, ok := ParseFilename(name)
		if !ok || de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		sid := byFile[name]
		if sid == "" {
			sid = parsed.Slug // last-resort fallback, matches the viewer contract
		}
		artifacts = append(artifacts, Artifact{
			Filename:  name,
			Timestamp: parsed.Timestamp,
			SessionID: sid,
			Title:     parsed.Title,
			Size:      info.Size(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Filename > artifacts[j].Filename
	})
	return artifacts, nil
}

// Rename gives an artifact a new title, recomputing its filename from the
// existing timestamp and the slugged title. The old file keeps its bytes; only
// the name changes.
func (s *Store) Rename(currentFilename, newTitle string) (string, error) {
	name, err := cleanName(currentFilename)
	if err != nil {
		return "", err
	}
	parsed, ok := ParseFilename(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBadPath, currentFilename)
	}

	slug := Slug(newTitle)
	if slug == "" {
		return "", ErrBadTitle
	}

	newName := parsed.Timestamp.Format(TimestampLayout) + "-" + slug + ".json"
	if newName == name {
		return name, nil
	}

	oldPath := filepath.Join(s.dir, name)
	newPath := filepath.Join(s.dir, newName)
	if _, err := os.Stat(oldPath); err != nil {
		return "", ErrNotFound
	}
	if _, err := os.Stat(newPath); err == nil {
		return "", ErrExists
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return "", fmt.Errorf("renaming %s: %w", name, err)
	}

	for sid, rec := range s.recs {
		if rec.Filename == name {
			rec.Filename = newName
			rec.Title = newTitle
			s.recs[sid] = rec
			if s.reg != nil {
				if err := s.reg.Put(rec); err != nil {
					s.warnf("registry update for %s: %v", newName, err)
				}
			}
			break
		}
	}
	return newName, nil
}

// Remove deletes one artifact file.
func (s *Store) Remove(filename string) error {
	name, err := cleanName(filename)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}

	for sid, rec := range s.recs {
		if rec.Filename == name {
			delete(s.recs, sid)
			break
		}
	}
	if s.reg != nil {
		if err := s.reg.DeleteByFilename(name); err != nil {
			s.warnf("registry purge for %s: %v", name, err)
		}
	}
	return nil
}

// cleanName rejects anything that is not a bare filename inside the output
// directory.
func cleanName(filename string) (string, error) {
	name := filepath.Clean(filename)
	if name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %s", ErrBadPath, filename)
	}
	return name, nil
}
