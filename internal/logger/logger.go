// Package logger provides the plugin host's structured logging setup.
//
// All components log through one zerolog.Logger instance, tagged with a
// "component" field so logs can be filtered per subsystem (installer,
// process manager, child worker, client, http). JSON output is used in
// production; a pretty console writer is available for local development.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global base logger. Safe to use before Initialize is called
// (it falls back to zerolog's default JSON logger on stderr).
var Log zerolog.Logger = log.Logger

// Initialize sets up the global logger with the configured level and
// output format.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "plugin-host").Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// SetLevel changes the global log level at runtime, backing the
// /v1/SetLoggingLevel debug endpoint.
func SetLevel(level string) error {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(logLevel)
	Log.Info().Str("level", logLevel.String()).Msg("log level changed")
	return nil
}

// component returns a child logger tagged with the given component name.
func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Installer creates a logger for package-install events.
func Installer() *zerolog.Logger { return component("installer") }

// InstallQueue creates a logger for the async install job queue.
func InstallQueue() *zerolog.Logger { return component("installqueue") }

// ProcessManager creates a logger for child-worker lifecycle events.
func ProcessManager() *zerolog.Logger { return component("procmgr") }

// Child creates a logger for the child worker's dispatch loop.
func Child() *zerolog.Logger { return component("child") }

// Client creates a logger for socket-client and retry events.
func Client() *zerolog.Logger { return component("client") }

// HTTP creates a logger for HTTP request events.
func HTTP() *zerolog.Logger { return component("http") }
