package logparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Event
		wantOK bool
	}{
		{"vanilla join", "[12:00:00] [Server thread/INFO]: Steve joined the game", Event{Join, "Steve"}, true},
		{"vanilla leave", "[12:00:00] [Server thread/INFO]: Alex_99 left the game", Event{Leave, "Alex_99"}, true},
		{"forge prefix", "[12Jan2024 12:00:00.000] [Server thread/INFO] [minecraft/MinecraftServer]: Notch joined the game", Event{Join, "Notch"}, true},
		{"ansi colored", "\x1b[33m[12:00:00] [Server thread/INFO]: Steve joined the game\x1b[0m", Event{Join, "Steve"}, true},
		{"chat mention", "[12:00:00] [Server thread/INFO]: <Steve> I joined the game yesterday", Event{}, false},
		{"no prefix", "Steve joined the game", Event{}, false},
		{"unrelated", "[12:00:00] [Server thread/INFO]: Preparing spawn area: 42%", Event{}, false},
		{"empty", "", Event{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsReady(t *testing.T) {
	assert.True(t, IsReady(`[12:00:00] [Server thread/INFO]: Done (3.2s)! For help, type "help"`))
	assert.True(t, IsReady("For help, type help"))
	assert.False(t, IsReady("[12:00:00] [Server thread/INFO]: Starting minecraft server version 1.20.4"))
}

func TestRoster_JoinThenLeaveRestores(t *testing.T) {
	r := NewRoster()
	r.Apply(Event{Join, "Alex"})
	before := r.List()

	changes := 0
	if r.Apply(Event{Join, "Steve"}) {
		changes++
	}
	if r.Apply(Event{Leave, "Steve"}) {
		changes++
	}
	assert.Equal(t, 2, changes)
	assert.Equal(t, before, r.List())
}

func TestRoster_IgnoresDuplicatesAndUnknownLeaves(t *testing.T) {
	r := NewRoster()
	assert.True(t, r.Apply(Event{Join, "Steve"}))
	assert.False(t, r.Apply(Event{Join, "Steve"}))
	assert.False(t, r.Apply(Event{Leave, "steve"}), "names match exactly")
	assert.False(t, r.Apply(Event{Kind: 0, Player: "x"}))
	assert.Equal(t, []string{"Steve"}, r.List())

	assert.True(t, r.Clear())
	assert.False(t, r.Clear())
	assert.Equal(t, []string{}, r.List())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "join", Join.String())
	assert.Equal(t, "leave", Leave.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
