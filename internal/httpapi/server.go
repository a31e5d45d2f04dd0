// Package httpapi exposes the Process Manager, Installer and install job
// queue over HTTP, using gin-gonic/gin the same way the rest of this
// codebase's middleware stack already does. Every handler is a thin
// translation layer: bind and validate the request, turn it into a wire
// request or an installer/queue call, and hand the result to
// internal/errors for the {data}/{error} envelope. None of the plugin
// execution logic lives here — that's internal/procmgr, internal/client
// and internal/childserver.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/hiagent/plugin-host/internal/client"
	"github.com/hiagent/plugin-host/internal/config"
	apierrors "github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/installer"
	"github.com/hiagent/plugin-host/internal/installqueue"
	"github.com/hiagent/plugin-host/internal/middleware"
	"github.com/hiagent/plugin-host/internal/procmgr"
)

// Server holds the dependencies every handler needs: the Process Manager
// to resolve a (pkg, version) to a running child, the bootstrap retry
// policy derived from config, and the installer/queue for package
// management.
type Server struct {
	cfg         config.Config
	procmgr     *procmgr.Manager
	installer   *installer.Installer
	queue       *installqueue.Queue
	retry       client.RetryPolicy
	pluginRate  *middleware.PluginRateLimiter
	mutateLimit gin.HandlerFunc
}

// New builds a Server. retry is derived once from cfg so every handler
// spawning a child shares the same bootstrap retry budget. pluginRate
// throttles RunPluginTool per (pkg, version) so one noisy plugin can't
// starve child worker capacity for the rest. mutateLimit additionally
// throttles the package install/delete surface per caller IP, since those
// calls are far more expensive than a read.
func New(cfg config.Config, pm *procmgr.Manager, inst *installer.Installer, queue *installqueue.Queue) *Server {
	return &Server{
		cfg:       cfg,
		procmgr:   pm,
		installer: inst,
		queue:     queue,
		retry: client.RetryPolicy{
			MaxRetries: cfg.StartProcessMaxRetries,
			Delay:      cfg.StartProcessRetryDelay,
		},
		pluginRate:  middleware.NewPluginRateLimiter(cfg.PluginRateLimitPerMinute, cfg.PluginRateLimitBurst),
		mutateLimit: (&middleware.RateLimiter{}).StrictMiddleware(20),
	}
}

// RegisterRoutes mounts /ping and the /v1/* surface on r.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/ping", s.Ping)

	v1 := r.Group("/v1")
	v1.POST("/InstallPackage", s.mutateLimit, s.InstallPackage)
	v1.POST("/InstallPackageAsync", s.mutateLimit, s.InstallPackageAsync)
	v1.POST("/GetInstallPackageAsyncStatus", s.GetInstallPackageAsyncStatus)
	v1.POST("/RetryInstallPackage", s.mutateLimit, s.RetryInstallPackage)
	v1.POST("/CancelInstallPackage", s.mutateLimit, s.CancelInstallPackage)
	v1.POST("/ReadPackageMetadata", s.ReadPackageMetadata)
	v1.POST("/DeletePackage", s.mutateLimit, s.DeletePackage)
	v1.POST("/GetPackageMetadata", s.GetPackageMetadata)
	v1.POST("/GetPluginIcon", s.GetPluginIcon)
	v1.POST("/RunPluginTool", s.RunPluginTool)
	v1.POST("/RunPluginValidate", s.RunPluginValidate)
	v1.POST("/SetLoggingLevel", s.SetLoggingLevel)
}

// Ping answers a bare liveness check; it never touches the Process
// Manager, so it stays fast even while every LRU slot is busy.
func (s *Server) Ping(c *gin.Context) {
	apierrors.JSON(c, "pong")
}
