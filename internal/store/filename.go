// Package store persists session artifacts and tracks their identity on disk.
package store

import (
	"strings"
	"time"
)

// TimestampLayout is the filename timestamp form, e.g. 2025-10-30_01-13-48.
const TimestampLayout = "2006-01-02_15-04-05"

// maxTitleChars caps the title length before slugging.
const maxTitleChars = 100

// Slug renders a title as a lowercase, hyphen-separated, filesystem-safe
// string: alphanumeric runs separated by single hyphens, no leading or
// trailing hyphen. Returns "" for titles with no usable characters.
// Slugging is a fixed point: Slug(Slug(t)) == Slug(t).
func Slug(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) > maxTitleChars {
		runes = runes[:maxTitleChars]
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range runes {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r + ('a' - 'A'))
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}

// BuildFilename produces the current-form artifact filename:
// {timestamp}-{slug}.json, where the slug comes from the title when one is
// given and otherwise from the session id.
func BuildFilename(ts time.Time, sessionID, title string) string {
	name := Slug(title)
	if name == "" {
		name = Slug(sessionID)
	}
	if name == "" {
		name = "session"
	}
	return ts.Format(TimestampLayout) + "-" + name + ".json"
}

// ParsedName is the result of parsing an artifact filename.
type ParsedName struct {
	Timestamp time.Time
	Slug      string // slug, or raw session id for untitled current-form files
	SessionID string // only recoverable from the legacy form
	Title     string // display title
	Legacy    bool
}

// ParseFilename parses both filename grammars:
//
//	current: {timestamp}-{slug}.json
//	legacy:  {timestamp}-{session-id}--{title-with-hyphens}.json
//
// The legacy form is read-only backward compatibility; it is never written.
func ParseFilename(filename string) (ParsedName, bool) {
	name, isJSON := strings.CutSuffix(filename, ".json")
	if !isJSON {
		return ParsedName{}, false
	}

	var p ParsedName
	if base, titlePart, found := strings.Cut(name, "--"); found {
		p.Legacy = true
		p.Title = strings.ReplaceAll(titlePart, "-", " ")
		name = base
	}

	if len(name) < len(TimestampLayout)+2 || name[len(TimestampLayout)] != '-' {
		return ParsedName{}, false
	}
	ts, err := time.Parse(TimestampLayout, name[:len(TimestampLayout)])
	if err != nil {
		return ParsedName{}, false
	}

	rest := name[len(TimestampLayout)+1:]
	if rest == "" {
		return ParsedName{}, false
	}

	p.Timestamp = ts
	if p.Legacy {
		p.SessionID = rest
	} else {
		p.Slug = rest
		p.Title = rest
	}
	return p, true
}

// ParseEventTimestamp parses an ISO-8601 event timestamp from the log.
func ParseEventTimestamp(s string) (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
