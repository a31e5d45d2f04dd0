package httpapi

import (
	"github.com/gin-gonic/gin"

	apierrors "github.com/hiagent/plugin-host/internal/errors"
)

// InstallPackage extracts a bundle synchronously and reports its manifest's
// declared plugin entries alongside the package brief, so a caller doesn't
// need a second ReadPackageMetadata round trip just to see what it got.
func (s *Server) InstallPackage(c *gin.Context) {
	var req installRequest
	if !bindAndValidate(c, &req) {
		return
	}

	brief, err := s.installer.Install(req.URI, req.Filename, req.Force)
	if err != nil {
		c.Error(err)
		return
	}

	entries, err := s.installer.ReadMetadata(req.URI, req.Filename)
	if err != nil {
		// The install itself succeeded; a failure to re-read entries for
		// the response shouldn't undo it or be reported as an install
		// error, so fall back to the brief alone.
		apierrors.JSON(c, brief)
		return
	}
	apierrors.JSON(c, entries)
}

// InstallPackageAsync enqueues the same install onto the job queue and
// returns immediately with a job id.
func (s *Server) InstallPackageAsync(c *gin.Context) {
	var req installRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id, err := s.queue.Enqueue(c.Request.Context(), req.URI, req.Filename, req.Force)
	if err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, gin.H{"job_id": id})
}

// GetInstallPackageAsyncStatus reports a queued/running/finished install
// job's current state.
func (s *Server) GetInstallPackageAsyncStatus(c *gin.Context) {
	var req jobIDRequest
	if !bindAndValidate(c, &req) {
		return
	}

	job, err := s.queue.Status(c.Request.Context(), req.JobID)
	if err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, job)
}

// RetryInstallPackage re-enqueues a job under its existing id, stopping it
// first if it is still running.
func (s *Server) RetryInstallPackage(c *gin.Context) {
	var req jobIDRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := s.queue.Retry(c.Request.Context(), req.JobID); err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, nil)
}

// CancelInstallPackage stops a queued or running job. Jobs already in a
// terminal state are rejected with JobNotCancellable.
func (s *Server) CancelInstallPackage(c *gin.Context) {
	var req jobIDRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := s.queue.Cancel(c.Request.Context(), req.JobID); err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, nil)
}

// ReadPackageMetadata inspects a bundle's manifest without installing it.
func (s *Server) ReadPackageMetadata(c *gin.Context) {
	var req readMetadataRequest
	if !bindAndValidate(c, &req) {
		return
	}

	entries, err := s.installer.ReadMetadata(req.URI, req.Filename)
	if err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, entries)
}

// DeletePackage stops the package's running child, if any, then removes
// its extracted directory tree.
func (s *Server) DeletePackage(c *gin.Context) {
	var req packageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	s.procmgr.Stop(req.Pkg, req.Version)
	if err := s.installer.Delete(req.Pkg, req.Version); err != nil {
		c.Error(err)
		return
	}
	apierrors.JSON(c, nil)
}
