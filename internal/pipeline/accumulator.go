// Package pipeline runs the telemetry log → session artifact transformation.
package pipeline

import (
	"gemtrail/internal/model"
)

// Sink is where the accumulator flushes session state. *store.Store satisfies
// it; tests substitute their own.
type Sink interface {
	// Prior returns previously persisted entries for a session, or nil.
	Prior(sessionID string) []model.PromptEntry
	// Persist atomically writes the full entry sequence and reports the
	// artifact filename and whether it was newly created.
	Persist(sessionID, firstTimestamp string, entries []model.PromptEntry) (filename string, created bool, err error)
}

// Accumulator is the single-pass session state machine. It holds at most one
// session's table at a time, flushing whenever the stream moves to a different
// session id and once more at Close.
type Accumulator struct {
	sink  Sink
	stats *model.Stats

	sessionID      string
	firstTimestamp string
	order          []string
	entries        map[string]*model.PromptEntry

	files []string
}

// NewAccumulator returns an accumulator flushing into sink and counting into
// stats.
func NewAccumulator(sink Sink, stats *model.Stats) *Accumulator {
	return &Accumulator{sink: sink, stats: stats}
}

// Ingest applies one classified event. Events are applied strictly in stream
// order; the last event of a kind for a prompt wins. Unknown-kind events are
// counted but never touch the table. The only error source is a failed flush
// when the session id changes.
func (a *Accumulator) Ingest(ev model.Event) error {
	if ev.SessionID != a.sessionID {
		if err := a.flush(); err != nil {
			return err
		}
		a.enter(ev.SessionID)
	}

	if a.firstTimestamp == "" && ev.Timestamp != "" {
		a.firstTimestamp = ev.Timestamp
	}

	a.stats.Count(ev.Kind)
	if ev.Kind == model.KindUnknown {
		return nil
	}

	entry, ok := a.entries[ev.PromptID]
	if !ok {
		entry = &model.PromptEntry{}
		a.entries[ev.PromptID] = entry
		a.order = append(a.order, ev.PromptID)
	}
	entry.Set(ev.Kind, ev.Attrs)
	return nil
}

// Close flushes whatever session is still open. Call exactly once at end of
// stream.
func (a *Accumulator) Close() error {
	return a.flush()
}

// Files returns the artifact filenames written so far, in flush order.
func (a *Accumulator) Files() []string {
	return a.files
}

// enter resets the table for a new session and merges in any previously
// persisted state, preserving the artifact's entry order ahead of new prompts.
func (a *Accumulator) enter(sessionID string) {
	a.sessionID = sessionID
	a.firstTimestamp = ""
	a.order = nil
	a.entries = make(map[string]*model.PromptEntry)

	for _, prior := range a.sink.Prior(sessionID) {
		id := prior.PromptID()
		if id == "" {
			continue
		}
		if _, ok := a.entries[id]; ok {
			continue
		}
		entry := prior
		a.entries[id] = &entry
		a.order = append(a.order, id)
	}
}

// flush persists the current table if it is non-empty.
func (a *Accumulator) flush() error {
	if a.sessionID == "" || len(a.order) == 0 {
		return nil
	}

	entries := make([]model.PromptEntry, len(a.order))
	for i, id := range a.order {
		entries[i] = *a.entries[id]
	}

	filename, created, err := a.sink.Persist(a.sessionID, a.firstTimestamp, entries)
	if err != nil {
		return err
	}

	a.stats.SessionsProcessed++
	if created {
		a.stats.SessionsCreated++
	} else {
		a.stats.SessionsUpdated++
	}
	a.files = append(a.files, filename)
	return nil
}
