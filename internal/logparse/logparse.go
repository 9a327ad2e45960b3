// Package logparse recognizes player presence and readiness in server console lines.
package logparse

import (
	"regexp"
	"strings"
)

type Kind int

const (
	Join Kind = iota + 1
	Leave
)

func (k Kind) String() string {
	switch k {
	case Join:
		return "join"
	case Leave:
		return "leave"
	default:
		return "unknown"
	}
}

// Event is a single presence change found in a line.
type Event struct {
	Kind   Kind
	Player string
}

var (
	presenceRe = regexp.MustCompile(`:\s(\w+)\s(joined|left) the game`)
	ansiRe     = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
)

// readyMarkers are substrings the server prints once it accepts connections.
var readyMarkers = []string{"Done", "For help"}

// Parse returns the presence event carried by line, if any.
func Parse(line string) (Event, bool) {
	m := presenceRe.FindStringSubmatch(StripANSI(line))
	if m == nil {
		return Event{}, false
	}
	ev := Event{Player: m[1], Kind: Join}
	if m[2] == "left" {
		ev.Kind = Leave
	}
	return ev, true
}

// IsReady reports whether line contains a readiness marker.
func IsReady(line string) bool {
	for _, mk := range readyMarkers {
		if strings.Contains(line, mk) {
			return true
		}
	}
	return false
}

// StripANSI removes terminal color escapes some server builds emit.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiRe.ReplaceAllString(s, "")
}
