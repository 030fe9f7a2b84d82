package model

// PromptEntry is one request/response/error triple for a single prompt.
// A nil field serializes as JSON null, matching the artifact format.
type PromptEntry struct {
	Request  map[string]any `json:"request"`
	Response map[string]any `json:"response"`
	Error    map[string]any `json:"error"`
}

// PromptID recovers the prompt identifier from whichever side of the triple
// carries it. Artifacts do not store the id separately, so entries loaded from
// disk are re-keyed through this.
func (e *PromptEntry) PromptID() string {
	for _, attrs := range []map[string]any{e.Request, e.Response, e.Error} {
		if attrs == nil {
			continue
		}
		if id, ok := attrs["prompt_id"].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

// SessionID recovers the session identifier from the entry's attributes,
// preferring the request side. Used for cold-start identity probing when the
// filename does not encode the session id.
func (e *PromptEntry) SessionID() string {
	for _, attrs := range []map[string]any{e.Request, e.Response, e.Error} {
		if attrs == nil {
			continue
		}
		if id, ok := attrs["session.id"].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

// Set stores attrs under the field matching kind, overwriting any prior value.
// KindUnknown is a no-op.
func (e *PromptEntry) Set(kind Kind, attrs map[string]any) {
	switch kind {
	case KindRequest:
		e.Request = attrs
	case KindResponse:
		e.Response = attrs
	case KindError:
		e.Error = attrs
	}
}
