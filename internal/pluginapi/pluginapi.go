// Package pluginapi defines the contract every plugin implements and the
// compiled-in registry child workers use to resolve a plugin name to its
// implementation.
//
// Go cannot load a class from an arbitrary entry-point string the way
// Python's importlib.metadata.entry_points does, so dynamic loading is
// replaced with a process-wide registry: a package's plugin.yaml manifest
// still declares group -> name -> registry key, but resolving that key
// happens against code compiled into the pluginworker binary rather than
// against a path on disk.
package pluginapi

import (
	"context"
	"sort"

	"github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/wire"
)

// StreamFunc is called once per item a streaming tool produces. Returning
// an error aborts the stream; the child surfaces it as one final error
// frame.
type StreamFunc func(item any) error

// Plugin is the runtime contract every registered plugin implements.
type Plugin interface {
	// GetMetadata describes the plugin and its tools.
	GetMetadata() wire.Metadata

	// RunTool invokes a named tool synchronously and returns its result.
	RunTool(ctx context.Context, tool string, input, config map[string]any) (any, error)

	// RunToolStream invokes a named streaming tool, calling emit once per
	// produced item. It returns once the tool is done or emit returns an
	// error.
	RunToolStream(ctx context.Context, tool string, input, config map[string]any, emit StreamFunc) error

	// RunValidate checks a config payload without running any tool.
	RunValidate(ctx context.Context, config map[string]any) error

	// Ping is a liveness probe independent of any tool; used to confirm a
	// freshly spawned child has finished importing this plugin.
	Ping() string
}

// Blocking is implemented by plugins whose tool bodies do real work (disk,
// network, CPU-bound) and should be offloaded to the worker pool instead
// of running on the connection's own goroutine.
type Blocking interface {
	Blocking() bool
}

// EntryGroup is the manifest group every plugin.yaml entry point is
// declared under.
const EntryGroup = "hiagent.plugins"

// registry is the process-wide, compile-time set of plugins a pluginworker
// binary links in, keyed by the name used in plugin.yaml manifests.
var registry = map[string]Plugin{}

// Register adds a plugin to the registry. Called from an init() in the
// package that implements it; a name collision is a build-time mistake,
// not a runtime condition to recover from.
func Register(name string, p Plugin) {
	if _, exists := registry[name]; exists {
		panic("pluginapi: duplicate registration for " + name)
	}
	registry[name] = p
}

// Lookup resolves a plugin name against the compiled-in registry. The
// group argument is accepted for symmetry with the manifest's
// group -> name shape but is not currently used to disambiguate, since
// this host only serves one entry-point group.
func Lookup(group, name string) (Plugin, error) {
	p, ok := registry[name]
	if !ok {
		return nil, errors.PluginEntryNotFound(name)
	}
	return p, nil
}

// List returns the names of every plugin currently registered, sorted so
// run_pkg_metadata produces a stable order across calls.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
