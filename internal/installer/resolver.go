package installer

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hiagent/plugin-host/internal/config"
	"github.com/hiagent/plugin-host/internal/errors"
)

// Resolver extracts a bundle's plugin code plus its dependencies into
// targetPath. The two implementations mirror install_offline and
// install_online: a bundle carrying an embedded dependencies/ subtree is
// self-contained and never touches the network; one without it needs its
// dependencies fetched from a package index.
type Resolver interface {
	Resolve(b *bundle, targetPath string) error
}

// OfflineResolver extracts the bundle directly into targetPath, including
// its embedded dependencies/ subtree, with no network access.
type OfflineResolver struct{}

func (OfflineResolver) Resolve(b *bundle, targetPath string) error {
	if err := os.MkdirAll(targetPath, 0o755); err != nil {
		return errors.InstallFailed(err.Error())
	}
	for _, f := range b.archive.File {
		if f.Name == manifestFileName {
			continue
		}
		if err := extractZipFile(f, targetPath); err != nil {
			return errors.InstallFailed(fmt.Sprintf("extract %s: %v", f.Name, err))
		}
	}
	return nil
}

// OnlineResolver extracts the bundle's plugin code, then fetches any
// dependency archives named in the manifest over HTTP from
// Package.IndexURL. Package.ExtraIndexURL and Package.TrustedHost are not
// used.
type OnlineResolver struct {
	Package config.PackageConfig
	Client  *http.Client
}

func (r OnlineResolver) Resolve(b *bundle, targetPath string) error {
	if err := os.MkdirAll(targetPath, 0o755); err != nil {
		return errors.InstallFailed(err.Error())
	}
	for _, f := range b.archive.File {
		if f.Name == manifestFileName || strings.HasPrefix(f.Name, dependenciesPrefix) {
			continue
		}
		if err := extractZipFile(f, targetPath); err != nil {
			return errors.InstallFailed(fmt.Sprintf("extract %s: %v", f.Name, err))
		}
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	for _, dep := range b.manifest.Dependencies {
		if err := r.fetchDependency(client, dep, targetPath); err != nil {
			return errors.InstallFailed(fmt.Sprintf("fetch dependency %s: %v", dep, err))
		}
	}
	return nil
}

func (r OnlineResolver) fetchDependency(client *http.Client, name, targetPath string) error {
	url := r.Package.IndexURL + "/" + name
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("index returned %s", resp.Status)
	}
	out, err := os.Create(filepath.Join(targetPath, name))
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func extractZipFile(f *zip.File, targetPath string) error {
	destPath := filepath.Join(targetPath, f.Name)
	if !strings.HasPrefix(destPath, filepath.Clean(targetPath)+string(os.PathSeparator)) && destPath != filepath.Clean(targetPath) {
		return fmt.Errorf("illegal file path in bundle: %s", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(destPath, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
