package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/craftvisor/internal/properties"
	"github.com/loykin/craftvisor/internal/server"
	"github.com/loykin/craftvisor/internal/supervisor"
	"github.com/loykin/craftvisor/internal/whitelist"
)

type stubSupervisor struct {
	mu       sync.Mutex
	state    supervisor.State
	commands []string
}

func (s *stubSupervisor) set(st supervisor.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *stubSupervisor) Start(context.Context) error {
	s.set(supervisor.StateStarting)
	return nil
}

func (s *stubSupervisor) Stop(context.Context) (supervisor.StopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != supervisor.StateOnline {
		return supervisor.StopResult{Outcome: supervisor.StopNotRunning}, nil
	}
	s.state = supervisor.StateOffline
	return supervisor.StopResult{Outcome: supervisor.StopClean, Elapsed: 1500 * time.Millisecond}, nil
}

func (s *stubSupervisor) Restart(ctx context.Context) error { return s.Start(ctx) }

func (s *stubSupervisor) Kill() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.state != supervisor.StateOffline
	s.state = supervisor.StateOffline
	return was
}

func (s *stubSupervisor) SendCommand(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == supervisor.StateOffline {
		return supervisor.ErrNotRunning
	}
	s.commands = append(s.commands, text)
	return nil
}

func (s *stubSupervisor) Status() supervisor.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return supervisor.Status{State: s.state, MemoryAllocation: "2G", Players: []string{"Alex"}}
}

func (s *stubSupervisor) Logs() []string { return []string{"one", "two", "three"} }

func (s *stubSupervisor) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == supervisor.StateOnline
}

func newTestClient(t *testing.T) (*Client, *stubSupervisor) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	sup := &stubSupervisor{}
	h := server.NewRouter(server.Config{
		BasePath:     "/api",
		Supervisor:   sup,
		Whitelist:    whitelist.New(filepath.Join(dir, whitelist.FileName), sup, nil),
		Properties:   properties.New(filepath.Join(dir, properties.FileName), nil),
		SettingsPath: filepath.Join(dir, "settings.json"),
	}).Handler()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second}), sup
}

func TestClient_Lifecycle(t *testing.T) {
	c, sup := newTestClient(t)
	ctx := context.Background()

	assert.True(t, c.IsReachable(ctx))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "offline", st.State)
	assert.Equal(t, []string{"Alex"}, st.Players)

	st, err = c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "starting", st.State)

	sup.set(supervisor.StateOnline)
	res, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "clean", res.Outcome)
	assert.Equal(t, 1500*time.Millisecond, res.Elapsed)

	killed, err := c.Kill(ctx)
	require.NoError(t, err)
	assert.False(t, killed)
}

func TestClient_CommandConflict(t *testing.T) {
	c, sup := newTestClient(t)
	ctx := context.Background()

	err := c.Command(ctx, "say hi")
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "not running")

	sup.set(supervisor.StateOnline)
	require.NoError(t, c.Command(ctx, "say hi"))
	sup.mu.Lock()
	assert.Equal(t, []string{"say hi"}, sup.commands)
	sup.mu.Unlock()
}

func TestClient_LogsWhitelistProperties(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	lines, err := c.Logs(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, lines)

	added, err := c.WhitelistAdd(ctx, "Steve")
	require.NoError(t, err)
	assert.True(t, added)
	entries, err := c.Whitelist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Steve", entries[0].Name)
	require.NoError(t, c.WhitelistRemove(ctx, "Steve"))

	_, err = c.WhitelistAdd(ctx, " ")
	assert.Error(t, err)

	props, err := c.SetProperties(ctx, map[string]string{"motd": "A Minecraft Server"})
	require.NoError(t, err)
	assert.Equal(t, "A Minecraft Server", props["motd"])
	props, err = c.Properties(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"motd": "A Minecraft Server"}, props)

	require.NoError(t, c.SetMemory(ctx, "6G"))
	assert.Error(t, c.SetMemory(ctx, "six"))
}

func TestClient_MissingRoute(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Resources(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := New(Config{BaseURL: url, Timeout: time.Second})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Status(context.Background())
	assert.Error(t, err)
}

func TestSetupClientTLS(t *testing.T) {
	cfg, err := setupClientTLS(Config{Insecure: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = setupClientTLS(Config{TLS: &TLSClientConfig{CACert: filepath.Join(t.TempDir(), "missing.crt")}})
	assert.Error(t, err)
}
