package model

// Stats accumulates counters for one processing run.
type Stats struct {
	TotalRecords int
	Requests     int
	Responses    int
	Errors       int
	Unknown      int // recognized shape, unrecognized event name
	Skipped      int // missing session.id or prompt_id

	SessionsProcessed int
	SessionsCreated   int
	SessionsUpdated   int

	DecodeWarnings int
}

// Count bumps the per-kind counter for a merged event.
func (s *Stats) Count(k Kind) {
	switch k {
	case KindRequest:
		s.Requests++
	case KindResponse:
		s.Responses++
	case KindError:
		s.Errors++
	default:
		s.Unknown++
	}
}
