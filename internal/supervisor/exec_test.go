//go:build !windows

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/craftvisor/internal/events"
)

// fakeJava mimics a server: it echoes its arguments, reports ready, and then
// serves console commands from stdin until "stop".
const fakeJava = `#!/bin/sh
echo "args: $*"
echo "[Server thread/INFO]: Done (0.1s)! For help, type \"help\""
while read -r line; do
  case "$line" in
    stop) echo "[Server thread/INFO]: Stopping the server"; exit 0 ;;
    join*) echo "[Server thread/INFO]: ${line#join } joined the game" ;;
    *) echo "unknown command: $line" >&2 ;;
  esac
done
`

func TestSupervisor_RealProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a shell process")
	}
	dir := t.TempDir()
	java := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(java, []byte(fakeJava), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.jar"), nil, 0o644))

	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1024)
	defer cancel()

	sup, err := New(Options{Dir: dir, Java: java, Bus: bus, StopTimeout: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, sup.Start(context.Background()))
	defer sup.Kill()

	require.Eventually(t, sup.Online, 5*time.Second, 10*time.Millisecond)
	assert.True(t, strings.HasPrefix(sup.Logs()[0], "args: -Xms2G -Xmx2G -jar "+filepath.Join(dir, "server.jar")+" nogui"))

	require.NoError(t, sup.SendCommand("join Notch"))
	require.Eventually(t, func() bool { return len(sup.Players()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Notch"}, sup.Players())

	require.NoError(t, sup.SendCommand("bogus"))
	require.Eventually(t, func() bool { return contains(sup.Logs(), "unknown command: bogus") }, 5*time.Second, 10*time.Millisecond)

	res, err := sup.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopClean, res.Outcome)
	assert.Equal(t, StateOffline, sup.State())
	assert.Empty(t, sup.Players())
	assert.Contains(t, sup.Logs(), "process exited cleanly")

	sawStderr := false
	for len(ch) > 0 {
		if e := <-ch; e.Type == events.TypeLog && e.Stream == events.StreamStderr {
			sawStderr = true
		}
	}
	assert.True(t, sawStderr)
}

func TestSupervisor_RealProcessKill(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a shell process")
	}
	dir := t.TempDir()
	java := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(java, []byte("#!/bin/sh\necho booting\nsleep 60\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.jar"), nil, 0o644))

	sup, err := New(Options{Dir: dir, Java: java})
	require.NoError(t, err)
	require.NoError(t, sup.Start(context.Background()))
	require.Eventually(t, func() bool { return contains(sup.Logs(), "booting") }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateStarting, sup.State())

	assert.True(t, sup.Kill())
	assert.Equal(t, StateOffline, sup.State())
	require.Eventually(t, func() bool {
		for _, l := range sup.Logs() {
			if strings.HasPrefix(l, "process exited: ") {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	assert.False(t, sup.Kill())
}
