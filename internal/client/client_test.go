package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/hiagent/plugin-host/internal/builtinplugins"
	"github.com/hiagent/plugin-host/internal/childserver"
	"github.com/hiagent/plugin-host/internal/wire"
)

func startChild(t *testing.T, delay time.Duration) string {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "child.sock")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		srv := childserver.New(addr, 2)
		_ = srv.Run(ctx)
	}()
	return addr
}

func TestRequest_UnaryRoundTrip(t *testing.T) {
	addr := startChild(t, 0)
	require.Eventually(t, func() bool {
		_, err := dial(context.Background(), addr)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := Request(context.Background(), addr, wire.NewRunPingRequest("echo"), false, RetryPolicy{})
	require.NoError(t, err)
	assert.Equal(t, "pong", data)
}

func TestRequest_RetriesAgainstFreshlySpawnedChild(t *testing.T) {
	// The socket doesn't exist for 150ms; a bootstrap caller (isNew=true)
	// must retry through that window instead of failing immediately.
	addr := startChild(t, 150*time.Millisecond)

	data, err := Request(context.Background(), addr, wire.NewRunPingRequest("echo"), true, RetryPolicy{
		MaxRetries: 10,
		Delay:      50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", data)
}

func TestRequest_NonBootstrapCallDoesNotRetry(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "never-listens.sock")

	_, err := Request(context.Background(), addr, wire.NewRunPingRequest("echo"), false, RetryPolicy{
		MaxRetries: 5,
		Delay:      10 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestRequest_ExhaustsRetriesAgainstDeadSocket(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "never-listens.sock")

	start := time.Now()
	_, err := Request(context.Background(), addr, wire.NewRunPingRequest("echo"), true, RetryPolicy{
		MaxRetries: 3,
		Delay:      10 * time.Millisecond,
	})
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRequestStream_DeliversAllItems(t *testing.T) {
	addr := startChild(t, 0)
	require.Eventually(t, func() bool {
		_, err := dial(context.Background(), addr)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	var items []any
	err := RequestStream(context.Background(), addr, wire.NewRunToolStreamRequest("echo", "count", map[string]any{"n": 3}, nil), func(item any) error {
		items = append(items, item)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRequestStream_StopsOnMidStreamError(t *testing.T) {
	addr := startChild(t, 0)
	require.Eventually(t, func() bool {
		_, err := dial(context.Background(), addr)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	var items []any
	err := RequestStream(context.Background(), addr, wire.NewRunToolStreamRequest("echo", "count", map[string]any{"n": 5, "fail_at": 2}, nil), func(item any) error {
		items = append(items, item)
		return nil
	})
	require.Error(t, err)
	assert.Len(t, items, 2)
}

func TestIsTransient(t *testing.T) {
	_, err := dial(context.Background(), filepath.Join(t.TempDir(), "missing.sock"))
	require.Error(t, err)
	assert.True(t, isTransient(err))
}

func TestPing_ConsumesBootstrapRetryBudget(t *testing.T) {
	addr := startChild(t, 100*time.Millisecond)
	err := Ping(context.Background(), addr, "echo", RetryPolicy{MaxRetries: 10, Delay: 30 * time.Millisecond})
	require.NoError(t, err)
}
