// Package procmgr implements the Process Manager: an LRU-bounded registry
// of one child worker process per (package, version), keyed and evicted
// exactly as the ProcessManager/OrderedDict pairing in the original
// socket-client implementation did, but expressed with container/list
// instead of Python's OrderedDict.move_to_end/popitem.
//
// The whole structure is guarded by a single mutex; Ensure and Stop are
// the only mutators, and both hold the lock for their full duration. No
// fine-grained per-entry locking is used, since any lookup can turn into
// a spawn-and-evict write.
package procmgr

import (
	"container/list"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/hiagent/plugin-host/internal/logger"
)

// Child is a single child worker's process handle and socket address.
type Child struct {
	Pkg     string
	Version string
	Addr    string

	proc *os.Process
}

// IsRunning reports whether the OS process backing this child is still
// alive, probed with signal 0 (no-op signal delivery, error iff the
// process is gone).
func (c *Child) IsRunning() bool {
	if c.proc == nil {
		return false
	}
	return c.proc.Signal(syscall.Signal(0)) == nil
}

// Spawner starts a new child worker process for (pkg, version) listening
// on addr, returning its process handle once the process has started (the
// socket may not exist yet) or an error if it could not be started.
// Implemented by internal/childspawn to avoid an import cycle between
// procmgr and the process-launching code.
type Spawner func(pkg, version, addr string) (*os.Process, error)

// Manager is the LRU-bounded map of running child workers.
type Manager struct {
	mu       sync.Mutex
	order    *list.List
	entries  map[string]*list.Element
	maxSize  int
	sockDir  string
	spawn    Spawner
}

// New creates a Manager that keeps at most maxSize child workers alive,
// placing unix socket files under sockDir.
func New(maxSize int, sockDir string, spawn Spawner) *Manager {
	return &Manager{
		order:   list.New(),
		entries: make(map[string]*list.Element),
		maxSize: maxSize,
		sockDir: sockDir,
		spawn:   spawn,
	}
}

func key(pkg, version string) string {
	return pkg + "-" + version
}

// Addr returns the unix socket path a (pkg, version) child listens on.
func (m *Manager) Addr(pkg, version string) string {
	return fmt.Sprintf("%s/hiagent.%s.%s.sock", m.sockDir, pkg, version)
}

// Ensure returns the running child for (pkg, version), spawning one if
// none exists or the existing one has died. The bool return reports
// whether a new child was just spawned: callers must retry their first
// connection attempt against it while it finishes starting up.
//
// Algorithm (unchanged from the process manager this replaces):
//   - hit and running: move to the back (most recently used), return
//     (child, false).
//   - miss or stale: drop the stale entry if present, spawn a new child,
//     evict the front (least recently used) if at capacity, push the new
//     child to the back, return (child, true).
func (m *Manager) Ensure(pkg, version string) (*Child, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(pkg, version)

	if elem, ok := m.entries[k]; ok {
		c := elem.Value.(*Child)
		if c.IsRunning() {
			m.order.MoveToBack(elem)
			return c, false, nil
		}
		logger.ProcessManager().Info().Str("key", k).Msg("child is not running, removing")
		m.order.Remove(elem)
		delete(m.entries, k)
	}

	addr := m.Addr(pkg, version)
	logger.ProcessManager().Debug().Str("key", k).Str("addr", addr).Msg("starting child")
	proc, err := m.spawn(pkg, version, addr)
	if err != nil {
		return nil, false, err
	}
	c := &Child{Pkg: pkg, Version: version, Addr: addr, proc: proc}

	if m.order.Len() >= m.maxSize {
		front := m.order.Front()
		if front != nil {
			old := front.Value.(*Child)
			logger.ProcessManager().Info().Str("key", key(old.Pkg, old.Version)).Int("max", m.maxSize).Msg("evicting lru child")
			m.terminate(old)
			m.order.Remove(front)
			delete(m.entries, key(old.Pkg, old.Version))
		}
	}

	m.entries[k] = m.order.PushBack(c)
	return c, true, nil
}

// Stop terminates and removes the child for (pkg, version), if any.
func (m *Manager) Stop(pkg, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(pkg, version)
	elem, ok := m.entries[k]
	if !ok {
		return
	}
	c := elem.Value.(*Child)
	m.terminate(c)
	m.order.Remove(elem)
	delete(m.entries, k)
}

// terminate signals the child to exit and unlinks its socket file. It is
// best-effort and non-blocking: callers don't wait for the process to
// actually exit before the entry is dropped.
func (m *Manager) terminate(c *Child) {
	if c.proc != nil {
		_ = c.proc.Signal(syscall.SIGTERM)
	}
	_ = os.Remove(c.Addr)
}

// Len returns the number of currently tracked children, for tests and
// metrics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
