package source

import (
	"encoding/json"
	"fmt"

	"gemtrail/internal/model"
)

// jsonStringFields are attribute fields that commonly hold JSON encoded as a
// string. Each is decoded independently; a field that fails to decode keeps
// its original string value.
var jsonStringFields = []string{
	"request_text",
	"response_text",
	"function_args",
}

// Classify normalizes one raw log value into an Event. ok is false when the
// record must be discarded: not an object, or missing session.id/prompt_id in
// its attributes. Unrecognized event names still classify (KindUnknown) so the
// caller can count them separately from discards.
//
// When decodeJSON is set, the allow-listed attribute fields are opportunistically
// decoded from JSON strings into values; per-field failures are returned as
// warnings and never affect the other fields.
func Classify(raw any, decodeJSON bool) (ev model.Event, warnings []string, ok bool) {
	record, isObj := raw.(map[string]any)
	if !isObj {
		return model.Event{}, nil, false
	}

	attrs, _ := record["attributes"].(map[string]any)

	sessionID, _ := attrs["session.id"].(string)
	promptID, _ := attrs["prompt_id"].(string)
	if sessionID == "" || promptID == "" {
		return model.Event{}, nil, false
	}

	ev = model.Event{
		Kind:      model.KindFor(eventName(record, attrs)),
		SessionID: sessionID,
		PromptID:  promptID,
		Timestamp: eventTimestamp(record, attrs),
		Attrs:     attrs,
	}

	if decodeJSON {
		ev.Attrs, warnings = decodeFields(attrs)
	}

	return ev, warnings, true
}

// eventName resolves the event name, preferring attributes["event.name"] and
// falling back to the top-level "event" and "name" fields.
func eventName(record, attrs map[string]any) string {
	if name, ok := attrs["event.name"].(string); ok && name != "" {
		return name
	}
	if name, ok := record["event"].(string); ok && name != "" {
		return name
	}
	name, _ := record["name"].(string)
	return name
}

// eventTimestamp resolves the record timestamp. attributes["event.timestamp"]
// is where Gemini CLI actually puts it; the top-level fields cover other
// exporter layouts.
func eventTimestamp(record, attrs map[string]any) string {
	if ts, ok := attrs["event.timestamp"].(string); ok && ts != "" {
		return ts
	}
	for _, key := range []string{"timestamp", "event_timestamp", "time"} {
		if ts, ok := record[key].(string); ok && ts != "" {
			return ts
		}
	}
	return ""
}

// decodeFields returns a copy of attrs with the allow-listed string fields
// decoded from JSON where possible.
func decodeFields(attrs map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}

	var warnings []string
	for _, field := range jsonStringFields {
		s, isStr := out[field].(string)
		if !isStr {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			warnings = append(warnings, fmt.Sprintf("field %s is not valid JSON: %v", field, err))
			continue
		}
		out[field] = decoded
	}
	return out, warnings
}
