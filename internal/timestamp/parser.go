// Package timestamp parses the observation times reported by the city API.
package timestamp

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Layout is the form the API reports and the store keeps observation times in.
const Layout = "2006-01-02 15:04:05"

// Zone is the time zone the API reports local times in.
const Zone = "Europe/Warsaw"

var layouts = []string{
	Layout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parser turns API time strings into instants. Times without an explicit
// offset are interpreted in the parser's location.
type Parser struct {
	loc *time.Location
}

// NewParser returns a parser for the API's local zone.
func NewParser() *Parser {
	loc, err := time.LoadLocation(Zone)
	if err != nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// NewParserIn returns a parser that interprets offset-less times in loc.
func NewParserIn(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// Location returns the zone offset-less times are read in.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Parse parses s as an API observation time or an RFC 3339 instant.
func (p *Parser) Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return ts, true
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return parseUnix(n), true
	}
	return time.Time{}, false
}

// ParseTimestamp accepts a decoded JSON value: a time string or a Unix
// timestamp in seconds, milliseconds, microseconds or nanoseconds.
func (p *Parser) ParseTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		return p.Parse(v)
	case *string:
		if v == nil {
			return time.Time{}, false
		}
		return p.Parse(*v)
	case float64:
		return parseUnix(v), true
	case int64:
		return parseUnix(float64(v)), true
	case int:
		return parseUnix(float64(v)), true
	}
	return time.Time{}, false
}

// Format renders t in Layout in the parser's location, the form the store
// compares time cursors against.
func (p *Parser) Format(t time.Time) string {
	return t.In(p.loc).Format(Layout)
}

// Normalize parses s and re-renders it in Layout. It is used for caller
// supplied time cursors so that "2024-01-01T10:00:00Z" and
// "2024-01-01 11:00:00" select the same rows.
func (p *Parser) Normalize(s string) (string, bool) {
	ts, ok := p.Parse(s)
	if !ok {
		return "", false
	}
	return p.Format(ts), true
}

func parseUnix(n float64) time.Time {
	switch {
	case n > 1e15:
		return time.Unix(0, int64(n))
	case n > 1e12:
		return time.UnixMicro(int64(n))
	case n > 1e10:
		return time.UnixMilli(int64(n))
	default:
		sec := int64(n)
		return time.Unix(sec, int64((n-float64(sec))*1e9))
	}
}
