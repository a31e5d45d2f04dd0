package installer

import (
	"archive/zip"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiagent/plugin-host/internal/config"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()

	zw := zip.NewWriter(out)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

const simpleManifest = `
name: hiagent-plugin-time
version: 0.1.0
entries:
  - group: hiagent.plugins
    name: time
`

func newTestConfig(t *testing.T) config.Config {
	return config.Config{
		ExtensionsPath:   filepath.Join(t.TempDir(), "extensions"),
		LocalStoragePath: t.TempDir(),
	}
}

func TestInstall_ExtractsPluginCode(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{
		"plugin.yaml":          simpleManifest,
		"hiagent_plugin_time/__init__.py": "print('hi')",
	})

	brief, err := inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.NoError(t, err)
	assert.Equal(t, "hiagent-plugin-time", brief.Name)
	assert.Equal(t, "0.1.0", brief.Version)

	installed := cfg.PackagePath("hiagent-plugin-time", "0.1.0")
	_, err = os.Stat(filepath.Join(installed, "hiagent_plugin_time", "__init__.py"))
	assert.NoError(t, err)
}

func TestInstall_AlreadyInstalledWithoutForce(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{"plugin.yaml": simpleManifest})

	_, err := inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.NoError(t, err)

	_, err = inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlreadyInstalled")
}

func TestInstall_ForceReinstallsOverExisting(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{"plugin.yaml": simpleManifest})

	_, err := inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.NoError(t, err)

	_, err = inst.Install("file://"+bundlePath, "bundle.zip", true)
	assert.NoError(t, err)
}

func TestInstall_MissingManifestRejected(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{"readme.txt": "nothing here"})

	_, err := inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidPackage")
}

func TestInstall_UnsupportedURISchemeRejected(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)

	_, err := inst.Install("ftp://example.com/bundle.zip", "bundle.zip", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ImportPluginError")
	assert.NotContains(t, err.Error(), "ImportPluginError.InvalidPackage")
}

func TestReadMetadata_ListsDeclaredEntriesWithoutInstalling(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{"plugin.yaml": simpleManifest})

	brief, err := inst.ReadMetadata("file://"+bundlePath, "bundle.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"time"}, brief.Plugins)

	_, err = os.Stat(cfg.PackagePath("hiagent-plugin-time", "0.1.0"))
	assert.True(t, os.IsNotExist(err), "ReadMetadata must not install anything")
}

func TestInstall_OnlineResolverFetchesDependencies(t *testing.T) {
	depServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("dependency-bytes"))
	}))
	defer depServer.Close()

	cfg := newTestConfig(t)
	cfg.Package.IndexURL = depServer.URL
	inst := New(cfg)

	manifest := simpleManifest + "dependencies:\n  - some-dep.whl\n"
	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{"plugin.yaml": manifest})

	_, err := inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.NoError(t, err)

	depPath := filepath.Join(cfg.PackagePath("hiagent-plugin-time", "0.1.0"), "some-dep.whl")
	content, err := os.ReadFile(depPath)
	require.NoError(t, err)
	assert.Equal(t, "dependency-bytes", string(content))
}

func TestInstall_EmbeddedDependenciesSkipNetwork(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Package.IndexURL = "http://127.0.0.1:1" // would fail fast if ever dialed
	inst := New(cfg)

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{
		"plugin.yaml":                   simpleManifest,
		"dependencies/vendored.whl":     "vendored-bytes",
	})

	_, err := inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(cfg.PackagePath("hiagent-plugin-time", "0.1.0"), "dependencies", "vendored.whl"))
	require.NoError(t, err)
	assert.Equal(t, "vendored-bytes", string(content))
}

func TestDelete_RemovesInstalledTree(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)

	bundlePath := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, bundlePath, map[string]string{"plugin.yaml": simpleManifest})
	_, err := inst.Install("file://"+bundlePath, "bundle.zip", false)
	require.NoError(t, err)

	require.NoError(t, inst.Delete("hiagent-plugin-time", "0.1.0"))
	_, err = os.Stat(cfg.PackagePath("hiagent-plugin-time", "0.1.0"))
	assert.True(t, os.IsNotExist(err))
}

func TestDelete_MissingPackageIsNoop(t *testing.T) {
	cfg := newTestConfig(t)
	inst := New(cfg)
	assert.NoError(t, inst.Delete("never-installed", "1.0.0"))
}
