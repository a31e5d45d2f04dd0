package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hiagent/plugin-host/internal/client"
	apierrors "github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/logger"
	"github.com/hiagent/plugin-host/internal/wire"
)

// ensureAndRequest resolves (pkg, version) to a running child, spawning one
// if needed, and sends req over it, retrying against the bootstrap race
// per s.retry when the child is freshly spawned.
func (s *Server) ensureAndRequest(ctx context.Context, pkg, version string, req wire.Request) (any, error) {
	child, isNew, err := s.procmgr.Ensure(pkg, version)
	if err != nil {
		return nil, err
	}
	return client.Request(ctx, child.Addr, req, isNew, s.retry)
}

// GetPackageMetadata returns every plugin's full descriptor for a running
// (or freshly spawned) package.
func (s *Server) GetPackageMetadata(c *gin.Context) {
	var req packageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	data, err := s.ensureAndRequest(c.Request.Context(), req.Pkg, req.Version, wire.NewRunPkgMetadataRequest())
	if err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, data)
}

// GetPluginIcon resolves a plugin's icon (a file:// reference relative to
// its package directory, per the plugin's metadata) and returns it
// base64-encoded so callers never need filesystem access to the
// extensions tree themselves.
func (s *Server) GetPluginIcon(c *gin.Context) {
	var req pluginIconRequest
	if !bindAndValidate(c, &req) {
		return
	}

	data, err := s.ensureAndRequest(c.Request.Context(), req.Pkg, req.Version, wire.NewRunMetadataRequest(req.Plugin))
	if err != nil {
		c.Error(err)
		return
	}
	meta, err := decodeMetadata(data)
	if err != nil {
		c.Error(err)
		return
	}

	iconRef := strings.TrimPrefix(meta.Icon, "file://")
	if iconRef == "" {
		c.Error(apierrors.New(apierrors.CodePluginIconError, "plugin "+req.Plugin+" declares no icon", http.StatusNotFound))
		return
	}

	path := filepath.Join(s.cfg.PackagePath(req.Pkg, req.Version), iconRef)
	content, err := os.ReadFile(path)
	if err != nil {
		c.Error(apierrors.New(apierrors.CodePluginIconError, err.Error(), http.StatusNotFound))
		return
	}
	apierrors.JSON(c, gin.H{
		"filename": filepath.Base(path),
		"content":  base64.StdEncoding.EncodeToString(content),
	})
}

// RunPluginTool invokes a single tool, synchronously or as a server-sent
// event stream depending on req.Stream.
func (s *Server) RunPluginTool(c *gin.Context) {
	var req runToolRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if !s.pluginRate.Allow(req.Pkg, req.Version) {
		c.Error(apierrors.RateLimited(req.Pkg, req.Version))
		return
	}

	if req.Stream {
		s.runPluginToolStream(c, req)
		return
	}

	wireReq := wire.NewRunToolRequest(req.Plugin, req.Tool, req.Input, req.Cfg)
	data, err := s.ensureAndRequest(c.Request.Context(), req.Pkg, req.Version, wireReq)
	if err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, data)
}

// RunPluginValidate checks a config payload against a plugin's schema
// without invoking any tool.
func (s *Server) RunPluginValidate(c *gin.Context) {
	var req runValidateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := s.ensureAndRequest(c.Request.Context(), req.Pkg, req.Version, wire.NewRunValidateRequest(req.Plugin, req.Cfg))
	if err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, nil)
}

// SetLoggingLevel changes the process-wide log level at runtime. This is a
// debug affordance the original host didn't expose over HTTP; it's added
// here because the host's own logger already supports it and an operator
// investigating a stuck child has no other way to turn on debug logging
// without a restart.
func (s *Server) SetLoggingLevel(c *gin.Context) {
	var req setLoggingLevelRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := logger.SetLevel(req.Level); err != nil {
		c.Error(apierrors.InvalidRequest("unknown log level: " + req.Level))
		return
	}
	apierrors.JSON(c, nil)
}

// decodeMetadata re-marshals a client.Request result (a generic
// map[string]any decoded off the wire) into a wire.Metadata, since the
// client package deliberately returns `any` rather than a typed shape that
// only this one handler needs.
func decodeMetadata(data any) (wire.Metadata, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return wire.Metadata{}, apierrors.Wrap(err)
	}
	var m wire.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return wire.Metadata{}, apierrors.Wrap(err)
	}
	return m, nil
}
