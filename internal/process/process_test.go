//go:build !windows

package process

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecLauncher_Streams(t *testing.T) {
	dir := t.TempDir()
	h, err := ExecLauncher{}.Launch(context.Background(), Spec{
		Name: "/bin/sh",
		Args: []string{"-c", `read x; echo "got $x"; pwd; echo oops >&2`},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Greater(t, h.PID(), 0)

	_, err = io.WriteString(h.Stdin(), "hello\n")
	require.NoError(t, err)

	out, err := io.ReadAll(h.Stdout())
	require.NoError(t, err)
	errOut, err := io.ReadAll(h.Stderr())
	require.NoError(t, err)
	require.NoError(t, h.Wait())
	require.NoError(t, h.Wait(), "second wait returns the same result")

	assert.Contains(t, string(out), "got hello")
	assert.Contains(t, string(out), dir)
	assert.Equal(t, "oops\n", string(errOut))
}

func TestExecLauncher_Kill(t *testing.T) {
	h, err := ExecLauncher{}.Launch(context.Background(), Spec{
		Name: "/bin/sh",
		Args: []string{"-c", "echo ready; sleep 30"},
	})
	require.NoError(t, err)

	sc := bufio.NewScanner(h.Stdout())
	require.True(t, sc.Scan())
	assert.Equal(t, "ready", sc.Text())

	start := time.Now()
	require.NoError(t, h.Kill())
	_, _ = io.Copy(io.Discard, h.Stdout())
	_, _ = io.Copy(io.Discard, h.Stderr())
	assert.Error(t, h.Wait(), "killed process reports a signal")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecLauncher_Errors(t *testing.T) {
	_, err := ExecLauncher{}.Launch(context.Background(), Spec{})
	assert.ErrorIs(t, err, ErrEmptyCommand)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ExecLauncher{}.Launch(ctx, Spec{Name: "/bin/true"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = ExecLauncher{}.Launch(context.Background(), Spec{Name: "/definitely/not/here"})
	assert.Error(t, err)
}

func TestSpecString(t *testing.T) {
	s := Spec{Name: "java", Args: []string{"-Xmx2G", "-jar", "server.jar", "nogui"}}
	assert.Equal(t, "java -Xmx2G -jar server.jar nogui", s.String())
	assert.Equal(t, "java", Spec{Name: "java"}.String())
}
