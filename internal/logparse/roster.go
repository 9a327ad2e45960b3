package logparse

import (
	"slices"
	"sync"
)

// Roster is the set of players currently online, keyed by exact name.
type Roster struct {
	mu      sync.Mutex
	players map[string]struct{}
}

func NewRoster() *Roster { return &Roster{players: make(map[string]struct{})} }

// Apply updates the roster and reports whether it changed. A join for a present
// player or a leave for an absent one is ignored.
func (r *Roster) Apply(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, present := r.players[ev.Player]
	switch ev.Kind {
	case Join:
		if present {
			return false
		}
		r.players[ev.Player] = struct{}{}
		return true
	case Leave:
		if !present {
			return false
		}
		delete(r.players, ev.Player)
		return true
	}
	return false
}

// Clear empties the roster and reports whether it held anyone.
func (r *Roster) Clear() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	had := len(r.players) > 0
	clear(r.players)
	return had
}

// List returns the players sorted by name.
func (r *Roster) List() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.players))
	for p := range r.players {
		out = append(out, p)
	}
	r.mu.Unlock()
	slices.Sort(out)
	return out
}
