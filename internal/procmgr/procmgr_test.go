package procmgr

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpawner starts a short-lived real OS process (so Child.IsRunning's
// signal-0 probe behaves like a real child) standing in for a pluginworker
// binary. It never actually listens on addr; tests here only exercise
// procmgr's own bookkeeping, not the wire protocol.
func fakeSpawner(t *testing.T) (Spawner, *sync.Map) {
	t.Helper()
	terminated := &sync.Map{}
	spawn := func(pkg, version, addr string) (*os.Process, error) {
		cmd := exec.Command("sleep", "30")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		proc := cmd.Process
		go func() {
			cmd.Wait()
			terminated.Store(key(pkg, version), true)
		}()
		t.Cleanup(func() { _ = proc.Kill() })
		return proc, nil
	}
	return spawn, terminated
}

func TestEnsure_SpawnsOnFirstCall(t *testing.T) {
	spawn, _ := fakeSpawner(t)
	m := New(10, t.TempDir(), spawn)

	child, isNew, err := m.Ensure("echo", "1.0.0")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "echo", child.Pkg)
	assert.Equal(t, 1, m.Len())
}

func TestEnsure_ReusesRunningChild(t *testing.T) {
	spawn, _ := fakeSpawner(t)
	m := New(10, t.TempDir(), spawn)

	first, isNew, err := m.Ensure("echo", "1.0.0")
	require.NoError(t, err)
	require.True(t, isNew)

	second, isNew, err := m.Ensure("echo", "1.0.0")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Same(t, first, second)
	assert.Equal(t, 1, m.Len())
}

func TestEnsure_NeverExceedsMaxSize(t *testing.T) {
	spawn, _ := fakeSpawner(t)
	m := New(2, t.TempDir(), spawn)

	for i := 0; i < 5; i++ {
		_, _, err := m.Ensure(fmt.Sprintf("pkg%d", i), "1.0.0")
		require.NoError(t, err)
		assert.LessOrEqual(t, m.Len(), 2)
	}
	assert.Equal(t, 2, m.Len())
}

func TestEnsure_EvictsLeastRecentlyUsed(t *testing.T) {
	spawn, _ := fakeSpawner(t)
	m := New(2, t.TempDir(), spawn)

	_, _, err := m.Ensure("a", "1.0.0")
	require.NoError(t, err)
	_, _, err = m.Ensure("b", "1.0.0")
	require.NoError(t, err)

	// touch "a" so "b" becomes least recently used
	_, isNew, err := m.Ensure("a", "1.0.0")
	require.NoError(t, err)
	require.False(t, isNew)

	_, isNew, err = m.Ensure("c", "1.0.0")
	require.NoError(t, err)
	require.True(t, isNew)

	_, stillTracked := m.entries[key("b", "1.0.0")]
	assert.False(t, stillTracked, "b should have been evicted as the LRU entry")
	_, aTracked := m.entries[key("a", "1.0.0")]
	assert.True(t, aTracked)
	_, cTracked := m.entries[key("c", "1.0.0")]
	assert.True(t, cTracked)
}

func TestStop_RemovesEntryAndAllowsReSpawn(t *testing.T) {
	spawn, _ := fakeSpawner(t)
	m := New(10, t.TempDir(), spawn)

	_, _, err := m.Ensure("echo", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	m.Stop("echo", "1.0.0")
	assert.Equal(t, 0, m.Len())

	_, isNew, err := m.Ensure("echo", "1.0.0")
	require.NoError(t, err)
	assert.True(t, isNew, "Stop then Ensure must yield a freshly spawned child")
}

func TestStop_OnUnknownKeyIsNoop(t *testing.T) {
	spawn, _ := fakeSpawner(t)
	m := New(10, t.TempDir(), spawn)
	m.Stop("never-existed", "1.0.0")
	assert.Equal(t, 0, m.Len())
}

func TestAddr_IsStableAndSocketScoped(t *testing.T) {
	m := New(10, "/tmp/sockets", nil)
	addr := m.Addr("echo", "1.0.0")
	assert.Equal(t, "/tmp/sockets/hiagent.echo.1.0.0.sock", addr)
}
