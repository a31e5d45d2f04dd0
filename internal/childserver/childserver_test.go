package childserver

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/hiagent/plugin-host/internal/builtinplugins"
	"github.com/hiagent/plugin-host/internal/wire"
)

// startTestServer runs a Server against a temp socket and returns its
// address, stopping the server and waiting for it to unlink the socket
// when the test completes.
func startTestServer(t *testing.T) string {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "child.sock")
	srv := New(addr, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return addr
}

func unaryRoundTrip(t *testing.T, addr string, req wire.Request) wire.Resp {
	t.Helper()
	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteRequest(conn, req))
	resp, err := wire.ReadResponse(conn)
	require.NoError(t, err)
	return resp
}

func TestChildServer_RunTool_Echo(t *testing.T) {
	addr := startTestServer(t)

	resp := unaryRoundTrip(t, addr, wire.NewRunToolRequest("echo", "echo", map[string]any{"msg": "hi"}, nil))
	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"msg": "hi"}, resp.Data)
}

func TestChildServer_RunPing(t *testing.T) {
	addr := startTestServer(t)

	resp := unaryRoundTrip(t, addr, wire.NewRunPingRequest("echo"))
	require.Nil(t, resp.Error)
	assert.Equal(t, "pong", resp.Data)
}

func TestChildServer_RunPkgMetadata_ListsAllPlugins(t *testing.T) {
	addr := startTestServer(t)

	resp := unaryRoundTrip(t, addr, wire.NewRunPkgMetadataRequest())
	require.Nil(t, resp.Error)
	metas, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(metas), 2) // at least echo and time
}

func TestChildServer_UnknownAction(t *testing.T) {
	addr := startTestServer(t)

	resp := unaryRoundTrip(t, addr, wire.Request{Action: "not_a_real_action"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ActionNotFound", resp.Error.Code)
}

func TestChildServer_UnknownPlugin(t *testing.T) {
	addr := startTestServer(t)

	resp := unaryRoundTrip(t, addr, wire.NewRunToolRequest("does-not-exist", "echo", nil, nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PluginEntryNotFound", resp.Error.Code)
}

func TestChildServer_Stream_CompletesCleanly(t *testing.T) {
	addr := startTestServer(t)

	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	defer conn.Close()

	req := wire.NewRunToolStreamRequest("echo", "count", map[string]any{"n": 3}, nil)
	require.NoError(t, wire.WriteRequest(conn, req))

	reader := wire.NewFrameReader(conn)
	var items []any
	for {
		resp, err := reader.Next()
		if err != nil {
			break
		}
		require.Nil(t, resp.Error)
		items = append(items, resp.Data)
	}
	require.Len(t, items, 3)
}

func TestChildServer_Stream_ErrorAfterSomeItems(t *testing.T) {
	addr := startTestServer(t)

	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	defer conn.Close()

	req := wire.NewRunToolStreamRequest("echo", "count", map[string]any{"n": 5, "fail_at": 2}, nil)
	require.NoError(t, wire.WriteRequest(conn, req))

	reader := wire.NewFrameReader(conn)
	var items []any
	var sawError bool
	for {
		resp, err := reader.Next()
		if err != nil {
			break
		}
		if resp.Error != nil {
			sawError = true
			break
		}
		items = append(items, resp.Data)
	}

	assert.Len(t, items, 2)
	assert.True(t, sawError, "expected exactly one error frame after the items preceding fail_at")
}
