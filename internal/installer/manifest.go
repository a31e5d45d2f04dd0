// Package installer extracts plugin bundles (zip archives replacing the
// wheel files the original host installed via pip) into the extensions
// tree and resolves their declared dependencies, online or offline.
package installer

import (
	"archive/zip"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/hiagent/plugin-host/internal/errors"
)

// PluginEntry is one group -> name declaration in a package's manifest,
// preserving the on-disk shape of a Python entry point without dynamic
// loading: the name is resolved against the compiled-in plugin registry
// instead.
type PluginEntry struct {
	Group string `yaml:"group"`
	Name  string `yaml:"name"`
}

// Manifest is a package's plugin.yaml: identity plus declared entry
// points.
type Manifest struct {
	Name         string        `yaml:"name"`
	Version      string        `yaml:"version"`
	Entries      []PluginEntry `yaml:"entries"`
	Dependencies []string      `yaml:"dependencies"`
}

const manifestFileName = "plugin.yaml"
const dependenciesPrefix = "dependencies/"

// bundle wraps an opened zip archive with its parsed manifest.
type bundle struct {
	archive  *zip.ReadCloser
	manifest Manifest
	// hasDependencies is true when the bundle embeds a dependencies/
	// subtree, the signal the original installer used to pick offline
	// resolution over a network fetch.
	hasDependencies bool
}

func openBundle(path string) (*bundle, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.InvalidPackage("cannot open bundle: " + err.Error())
	}

	var manifest Manifest
	found := false
	hasDeps := false

	for _, f := range archive.File {
		if f.Name == manifestFileName {
			if err := readManifest(f, &manifest); err != nil {
				archive.Close()
				return nil, errors.InvalidPackage("invalid plugin.yaml: " + err.Error())
			}
			found = true
		}
		if len(f.Name) > len(dependenciesPrefix) && f.Name[:len(dependenciesPrefix)] == dependenciesPrefix {
			hasDeps = true
		}
	}

	if !found {
		archive.Close()
		return nil, errors.InvalidPackage("bundle missing plugin.yaml")
	}
	if manifest.Name == "" || manifest.Version == "" {
		archive.Close()
		return nil, errors.InvalidPackage("pkg name or version is empty")
	}

	return &bundle{archive: archive, manifest: manifest, hasDependencies: hasDeps}, nil
}

func readManifest(f *zip.File, out *Manifest) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func (b *bundle) Close() error {
	return b.archive.Close()
}
