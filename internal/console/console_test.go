package console

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_EvictsOldestFirst(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(fmt.Sprint(i))
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"3", "4", "5"}, b.Lines())
}

func TestBuffer_DefaultCapacityBound(t *testing.T) {
	b := NewBuffer(0)
	for i := 0; i < DefaultCapacity+500; i++ {
		b.Append(fmt.Sprint(i))
		if b.Len() > DefaultCapacity {
			t.Fatalf("buffer grew past capacity: %d", b.Len())
		}
	}
	lines := b.Lines()
	assert.Equal(t, "500", lines[0])
	assert.Equal(t, fmt.Sprint(DefaultCapacity+499), lines[len(lines)-1])
}

func TestBuffer_LinesIsCopy(t *testing.T) {
	b := NewBuffer(2)
	b.Append("a")
	l := b.Lines()
	l[0] = "mutated"
	assert.Equal(t, []string{"a"}, b.Lines())
}

func TestAccumulator_SplitAcrossChunks(t *testing.T) {
	var got []string
	a := NewAccumulator(func(s string) { got = append(got, s) })

	_, _ = a.Write([]byte("[12:00:00] [Server thread/INFO]: Ste"))
	assert.Empty(t, got, "no line until newline")
	_, _ = a.Write([]byte("ve joined the game\r\n[12:00:01] second"))
	_, _ = a.Write([]byte(" line\nthird"))
	a.Flush()

	assert.Equal(t, []string{
		"[12:00:00] [Server thread/INFO]: Steve joined the game",
		"[12:00:01] second line",
		"third",
	}, got)
}

func TestAccumulator_FlushEmptyIsNoop(t *testing.T) {
	calls := 0
	a := NewAccumulator(func(string) { calls++ })
	a.Flush()
	_, _ = a.Write([]byte("x\n"))
	a.Flush()
	assert.Equal(t, 1, calls)
}
