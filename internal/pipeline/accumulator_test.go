package pipeline

import (
	"fmt"
	"testing"

	"gemtrail/internal/model"
)

// memSink is an in-memory Sink recording every flush.
type memSink struct {
	prior      map[string][]model.PromptEntry
	persisted  map[string][]model.PromptEntry
	timestamps map[string]string
	failWith   error
}

func newMemSink() *memSink {
	return &memSink{
		prior:      make(map[string][]model.PromptEntry),
		persisted:  make(map[string][]model.PromptEntry),
		timestamps: make(map[string]string),
	}
}

func (m *memSink) Prior(sessionID string) []model.PromptEntry {
	return m.prior[sessionID]
}

func (m *memSink) Persist(sessionID, firstTimestamp string, entries []model.PromptEntry) (string, bool, error) {
	if m.failWith != nil {
		return "", false, m.failWith
	}
	_, existed := m.prior[sessionID]
	_, written := m.persisted[sessionID]
	m.persisted[sessionID] = entries
	m.timestamps[sessionID] = firstTimestamp
	return sessionID + ".json", !existed && !written, nil
}

func ev(kind model.Kind, session, prompt, ts string, attrs map[string]any) model.Event {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["session.id"] = session
	attrs["prompt_id"] = prompt
	return model.Event{Kind: kind, SessionID: session, PromptID: prompt, Timestamp: ts, Attrs: attrs}
}

func TestAccumulator_LastWriteWins(t *testing.T) {
	sink := newMemSink()
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	for _, e := range []model.Event{
		ev(model.KindRequest, "s1", "p1", "", map[string]any{"request_text": "hi"}),
		ev(model.KindResponse, "s1", "p1", "", map[string]any{"response_text": "first"}),
		ev(model.KindResponse, "s1", "p1", "", map[string]any{"response_text": "second"}),
	} {
		if err := acc.Ingest(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}

	entries := sink.persisted["s1"]
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[0].Response["response_text"]; got != "second" {
		t.Errorf("response_text = %v, want second (last write wins)", got)
	}
	if stats.Responses != 2 || stats.Requests != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAccumulator_PromptOrderPreserved(t *testing.T) {
	sink := newMemSink()
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	// p1 and p2 interleave; first-seen order must hold in the artifact.
	for _, e := range []model.Event{
		ev(model.KindRequest, "s1", "p1", "", nil),
		ev(model.KindRequest, "s1", "p2", "", nil),
		ev(model.KindResponse, "s1", "p1", "", nil),
		ev(model.KindError, "s1", "p2", "", map[string]any{"error.message": "quota"}),
	} {
		if err := acc.Ingest(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}

	entries := sink.persisted["s1"]
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].PromptID() != "p1" || entries[1].PromptID() != "p2" {
		t.Errorf("order = [%s, %s], want [p1, p2]", entries[0].PromptID(), entries[1].PromptID())
	}
	if entries[0].Error != nil {
		t.Error("p1 has an error it never received")
	}
	if entries[1].Error == nil || entries[1].Response != nil {
		t.Errorf("p2 = %+v, want request+error only", entries[1])
	}
}

func TestAccumulator_InterleavedPromptsLastResponseWins(t *testing.T) {
	sink := newMemSink()
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	for _, e := range []model.Event{
		ev(model.KindRequest, "s1", "p1", "", nil),
		ev(model.KindResponse, "s1", "p1", "", map[string]any{"v": "first"}),
		ev(model.KindRequest, "s1", "p2", "", nil),
		ev(model.KindError, "s1", "p2", "", nil),
		ev(model.KindResponse, "s1", "p1", "", map[string]any{"v": "second"}),
	} {
		if err := acc.Ingest(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}

	entries := sink.persisted["s1"]
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].PromptID() != "p1" || entries[1].PromptID() != "p2" {
		t.Errorf("order = [%s, %s], want [p1, p2]", entries[0].PromptID(), entries[1].PromptID())
	}
	if got := entries[0].Response["v"]; got != "second" {
		t.Errorf("p1 response = %v, want the later one", got)
	}
	if entries[1].Request == nil || entries[1].Error == nil || entries[1].Response != nil {
		t.Errorf("p2 = %+v, want request+error only", entries[1])
	}
}

func TestAccumulator_SessionChangeFlushes(t *testing.T) {
	sink := newMemSink()
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	for _, e := range []model.Event{
		ev(model.KindRequest, "s1", "p1", "", nil),
		ev(model.KindRequest, "s2", "p1", "", nil),
		ev(model.KindRequest, "s1", "p2", "", nil), // s1 again: second flush for s1
	} {
		if err := acc.Ingest(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}

	if len(sink.persisted) != 2 {
		t.Fatalf("sessions persisted = %d, want 2", len(sink.persisted))
	}
	files := acc.Files()
	want := []string{"s1.json", "s2.json", "s1.json"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
	if stats.SessionsProcessed != 3 {
		t.Errorf("SessionsProcessed = %d, want 3", stats.SessionsProcessed)
	}
}

func TestAccumulator_MergesPriorState(t *testing.T) {
	sink := newMemSink()
	sink.prior["s1"] = []model.PromptEntry{
		{Request: map[string]any{"prompt_id": "p0", "request_text": "old"}},
	}
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	// New response for the old prompt plus a brand new prompt.
	if err := acc.Ingest(ev(model.KindResponse, "s1", "p0", "", map[string]any{"response_text": "late"})); err != nil {
		t.Fatal(err)
	}
	if err := acc.Ingest(ev(model.KindRequest, "s1", "p1", "", nil)); err != nil {
		t.Fatal(err)
	}
	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}

	entries := sink.persisted["s1"]
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].PromptID() != "p0" {
		t.Errorf("prior prompt not first: %q", entries[0].PromptID())
	}
	if entries[0].Request["request_text"] != "old" {
		t.Error("prior request lost during merge")
	}
	if entries[0].Response == nil {
		t.Error("late response not merged into prior entry")
	}
	if stats.SessionsUpdated != 1 || stats.SessionsCreated != 0 {
		t.Errorf("stats = %+v, want one update", stats)
	}
}

func TestAccumulator_UnknownKindNeverCreatesEntries(t *testing.T) {
	sink := newMemSink()
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	if err := acc.Ingest(ev(model.KindUnknown, "s1", "p1", "", nil)); err != nil {
		t.Fatal(err)
	}
	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}

	if len(sink.persisted) != 0 {
		t.Errorf("persisted = %v, want nothing", sink.persisted)
	}
	if stats.Unknown != 1 {
		t.Errorf("Unknown = %d, want 1", stats.Unknown)
	}
	if stats.SessionsProcessed != 0 {
		t.Errorf("SessionsProcessed = %d, want 0", stats.SessionsProcessed)
	}
}

func TestAccumulator_FirstTimestampRetained(t *testing.T) {
	sink := newMemSink()
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	// First event lacks a timestamp; the first non-empty one is kept.
	for _, e := range []model.Event{
		ev(model.KindRequest, "s1", "p1", "", nil),
		ev(model.KindResponse, "s1", "p1", "2025-10-30T01:13:48.000Z", nil),
		ev(model.KindRequest, "s1", "p2", "2025-10-30T09:00:00.000Z", nil),
	} {
		if err := acc.Ingest(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}

	if got := sink.timestamps["s1"]; got != "2025-10-30T01:13:48.000Z" {
		t.Errorf("firstTimestamp = %q", got)
	}
}

func TestAccumulator_FlushErrorPropagates(t *testing.T) {
	sink := newMemSink()
	sink.failWith = fmt.Errorf("disk full")
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	if err := acc.Ingest(ev(model.KindRequest, "s1", "p1", "", nil)); err != nil {
		t.Fatal(err)
	}
	if err := acc.Close(); err == nil {
		t.Error("Close err = nil, want persist failure")
	}
	if stats.SessionsProcessed != 0 {
		t.Errorf("SessionsProcessed = %d after failed flush, want 0", stats.SessionsProcessed)
	}
}

func TestAccumulator_CloseWithoutEvents(t *testing.T) {
	sink := newMemSink()
	var stats model.Stats
	acc := NewAccumulator(sink, &stats)

	if err := acc.Close(); err != nil {
		t.Fatal(err)
	}
	if len(sink.persisted) != 0 {
		t.Error("persisted something with no input")
	}
}
