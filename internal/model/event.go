// Package model defines domain types for gemtrail telemetry events and sessions.
package model

// Kind classifies a telemetry record by its event name.
type Kind int

const (
	KindUnknown Kind = iota
	KindRequest
	KindResponse
	KindError
)

// Recognized event names inside attributes["event.name"].
const (
	EventRequest  = "gemini_cli.api_request"
	EventResponse = "gemini_cli.api_response"
	EventError    = "gemini_cli.api_error"
)

// KindFor maps an event name to its Kind. Anything unrecognized is KindUnknown.
func KindFor(eventName string) Kind {
	switch eventName {
	case EventRequest:
		return KindRequest
	case EventResponse:
		return KindResponse
	case EventError:
		return KindError
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Event is one normalized telemetry record. SessionID and PromptID are always
// non-empty; records lacking either never become Events.
type Event struct {
	Kind      Kind
	SessionID string
	PromptID  string
	Timestamp string // ISO-8601 as found in the record, may be empty
	Attrs     map[string]any
}
