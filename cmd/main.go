// Command plugin-host is the HTTP entry point: it loads configuration,
// wires the Installer, install job queue and Process Manager together,
// mounts the /v1/* surface, and serves until a termination signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/hiagent/plugin-host/internal/childspawn"
	"github.com/hiagent/plugin-host/internal/config"
	apierrors "github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/httpapi"
	"github.com/hiagent/plugin-host/internal/installer"
	"github.com/hiagent/plugin-host/internal/installqueue"
	"github.com/hiagent/plugin-host/internal/logger"
	"github.com/hiagent/plugin-host/internal/middleware"
	"github.com/hiagent/plugin-host/internal/procmgr"
)

// streamingPath is excluded from gzip: RunPluginTool's SSE responses are
// long-lived and must not be buffered whole before the first byte goes out.
const streamingPath = "/v1/RunPluginTool"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Level, cfg.Pretty)
	log := logger.GetLogger()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	inst := installer.New(cfg)
	queue := installqueue.New(rdb, inst, cfg.InstallWorkers, cfg.WorkerJobTimeout)

	spawn := childspawn.New(cfg.WorkerBinaryPath, cfg.ExtensionsPath)
	pm := procmgr.New(cfg.MaxSubprocess, cfg.SockDir, spawn)

	api := httpapi.New(cfg, pm, inst, queue)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(apierrors.Recovery())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.GzipWithExclusions(middleware.BestSpeed, []string{streamingPath}))
	router.Use(middleware.RequestSizeLimiter(middleware.MaxRequestBodySize))
	router.Use(middleware.TimeoutWithDuration(60*time.Second, streamingPath))
	rateLimiter := middleware.NewRateLimiter(50, 100)
	router.Use(rateLimiter.Middleware())
	router.Use(apierrors.ErrorHandler())

	api.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		// No WriteTimeout: RunPluginTool's SSE responses stay open for as
		// long as the plugin keeps producing items.
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("plugin host listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server exited with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
