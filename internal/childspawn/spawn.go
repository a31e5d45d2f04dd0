// Package childspawn builds the procmgr.Spawner the host process uses to
// start new pluginworker child processes, mirroring how ProcessWorker
// launched the Python worker function as a daemon multiprocessing.Process
// with the package path prepended to sys.path: here, the package path and
// socket address are passed as flags to a separate compiled binary.
package childspawn

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hiagent/plugin-host/internal/procmgr"
)

// New returns a Spawner that execs workerBinary with the conventional
// --pkg/--version/--addr/--extensions-root flags, sharing the host's own
// stdout and stderr, and returns its process handle once exec.Start
// succeeds.
func New(workerBinary, extensionsRoot string) procmgr.Spawner {
	return func(pkg, version, addr string) (*os.Process, error) {
		cmd := exec.Command(workerBinary,
			"--pkg", pkg,
			"--version", version,
			"--addr", addr,
			"--extensions-root", extensionsRoot,
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("spawn %s %s: %w", pkg, version, err)
		}
		// Reap the process asynchronously so it doesn't become a zombie;
		// procmgr only needs the handle to probe liveness and signal it.
		go cmd.Wait()
		return cmd.Process, nil
	}
}
