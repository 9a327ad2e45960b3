package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/craftvisor/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container and returns its
// native protocol address.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	c, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return c, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	c, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := c.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(Options{Addr: addr, Table: "server_history"})
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	now := time.Now().UTC()
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventState, OccurredAt: now, State: "online"}))
	require.NoError(t, sink.Send(ctx, history.Event{Type: history.EventJoin, OccurredAt: now, Player: "Steve"}))

	var count uint64
	require.NoError(t, sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM server_history WHERE occurred_at >= ?", now.Add(-time.Second)).Scan(&count))
	assert.Equal(t, uint64(2), count)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, sink.Send(cancelled, history.Event{Type: history.EventLeave, OccurredAt: now}))
}

func TestClickHouseSink_InvalidTable(t *testing.T) {
	_, err := New(Options{Addr: "localhost:9000", Table: "x; DROP TABLE y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ClickHouse table")
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	_, err := New(Options{Addr: "invalid-host.invalid:9000"})
	assert.Error(t, err)
}
