package installer

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/hiagent/plugin-host/internal/config"
	"github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/logger"
)

// PackageBrief describes a just-installed (or already-installed) package,
// mirroring PackageMetaBrief.
type PackageBrief struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URI     string `json:"uri"`
}

// PackageBriefWithEntries is PackageBrief plus the plugin entry names
// declared by the bundle's manifest, returned when inspecting a bundle
// without installing it.
type PackageBriefWithEntries struct {
	PackageBrief
	Plugins []string `json:"plugins"`
}

// Installer extracts uploaded bundles into the extensions tree.
type Installer struct {
	cfg    config.Config
	client *http.Client
}

// New creates an Installer bound to cfg's extensions path.
func New(cfg config.Config) *Installer {
	return &Installer{cfg: cfg, client: http.DefaultClient}
}

// fetchBundle resolves uri to a local bundle path, downloading it first if
// uri is not a file:// reference. Downloads land at
// {local_storage}/pkg/{filename}; a prior download under the same filename
// is reused as-is (the filename is the cache key, mirroring how the
// original host deduped uploads by name), and a failed download never
// leaves a partial file behind.
func (i *Installer) fetchBundle(uri, filename string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", errors.InvalidPackage(fmt.Sprintf("invalid package uri: %v", err))
	}

	switch parsed.Scheme {
	case "file", "":
		path := parsed.Path
		if path == "" {
			path = uri
		}
		return path, nil

	case "http", "https":
		destDir := filepath.Join(i.cfg.LocalStoragePath, "pkg")
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return "", errors.InstallFailed(err.Error())
		}
		destPath := filepath.Join(destDir, filename)
		if _, err := os.Stat(destPath); err == nil {
			return destPath, nil
		}
		if err := i.download(uri, destPath); err != nil {
			return "", err
		}
		return destPath, nil

	default:
		return "", errors.ImportPluginError(fmt.Sprintf("unsupported uri %s", uri))
	}
}

func (i *Installer) download(uri, destPath string) error {
	resp, err := i.client.Get(uri)
	if err != nil {
		return errors.InstallFailed(fmt.Sprintf("download %s: %v", uri, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.InstallFailed(fmt.Sprintf("download %s: %s", uri, resp.Status))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return errors.InstallFailed(err.Error())
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return errors.InstallFailed(fmt.Sprintf("download %s: %v", uri, err))
	}
	return out.Close()
}

// Install resolves uri/filename to a local bundle, then extracts it into
// the extensions tree, choosing the offline or online resolver based on
// whether the bundle embeds its own dependencies/ subtree. force allows
// re-installing over an existing package/version directory.
func (i *Installer) Install(uri, filename string, force bool) (PackageBrief, error) {
	bundlePath, err := i.fetchBundle(uri, filename)
	if err != nil {
		return PackageBrief{}, err
	}

	b, err := openBundle(bundlePath)
	if err != nil {
		return PackageBrief{}, err
	}
	defer b.Close()

	targetPath := i.cfg.PackagePath(b.manifest.Name, b.manifest.Version)
	if _, err := os.Stat(targetPath); err == nil && !force {
		return PackageBrief{}, errors.AlreadyInstalled(b.manifest.Name, b.manifest.Version)
	}

	var resolver Resolver
	if b.hasDependencies {
		resolver = OfflineResolver{}
	} else {
		resolver = OnlineResolver{Package: i.cfg.Package, Client: i.client}
	}

	logger.Installer().Info().
		Str("pkg", b.manifest.Name).
		Str("version", b.manifest.Version).
		Bool("offline", b.hasDependencies).
		Msg("installing package")

	if err := resolver.Resolve(b, targetPath); err != nil {
		return PackageBrief{}, err
	}

	return PackageBrief{Name: b.manifest.Name, Version: b.manifest.Version, URI: uri}, nil
}

// ReadMetadata resolves uri/filename to a local bundle and inspects its
// manifest without installing it, returning the declared plugin entry
// names. The manifest's entry list is the only source read: an embedded
// structured metadata file, if the bundle carries one, is not parsed.
func (i *Installer) ReadMetadata(uri, filename string) (PackageBriefWithEntries, error) {
	bundlePath, err := i.fetchBundle(uri, filename)
	if err != nil {
		return PackageBriefWithEntries{}, err
	}

	b, err := openBundle(bundlePath)
	if err != nil {
		return PackageBriefWithEntries{}, err
	}
	defer b.Close()

	names := make([]string, 0, len(b.manifest.Entries))
	for _, e := range b.manifest.Entries {
		names = append(names, e.Name)
	}

	return PackageBriefWithEntries{
		PackageBrief: PackageBrief{Name: b.manifest.Name, Version: b.manifest.Version, URI: uri},
		Plugins:      names,
	}, nil
}

// Delete removes an installed package's directory tree.
func (i *Installer) Delete(pkg, version string) error {
	path := i.cfg.PackagePath(pkg, version)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(path)
}
