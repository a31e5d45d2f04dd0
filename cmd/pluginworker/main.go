// Command pluginworker is the child process the Process Manager spawns:
// one instance per (package, version), serving the wire protocol over a
// single unix socket until its parent signals it to exit.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hiagent/plugin-host/internal/childserver"
	"github.com/hiagent/plugin-host/internal/logger"

	_ "github.com/hiagent/plugin-host/internal/builtinplugins"
)

func main() {
	pkg := flag.String("pkg", "", "package name")
	version := flag.String("version", "", "package version")
	addr := flag.String("addr", "", "unix socket address to listen on")
	extensionsRoot := flag.String("extensions-root", "", "installed packages root (unused by built-in plugins, read by loaded ones)")
	flag.Parse()

	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("LOG_PRETTY", "") == "true")

	log := logger.Child().With().Str("pkg", *pkg).Str("version", *version).Logger()
	if *addr == "" {
		log.Fatal().Msg("--addr is required")
	}
	_ = extensionsRoot

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := childserver.New(*addr, childPoolSize())
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("child server exited with error")
	}
}

func childPoolSize() int {
	if v := os.Getenv("CHILD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 4
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
