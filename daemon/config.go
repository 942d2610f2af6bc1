// Package daemon exposes the capture and playback engine over a local HTTP
// API, so toolbars and panels living in other processes can drive it by
// polling.
package daemon

import (
	"os"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/macro"
)

// Environment variable names for daemon configuration. The stop key and
// queue size share their names with the capture worker contract, so a
// worker spawned without an explicit override inherits matching settings.
const (
	EnvListen        = "MACROD_LISTEN"
	EnvCatalogPath   = "MACROD_DB"
	EnvCaptureMode   = "MACROD_CAPTURE_MODE"
	EnvWorkerCmd     = "MACROD_WORKER_CMD"
	EnvLogLevel      = "MACROD_LOG_LEVEL"
	EnvShutdownGrace = "MACROD_SHUTDOWN_GRACE_MS"
)

// Config holds the daemon configuration.
type Config struct {
	// ListenAddr is the HTTP bind address. Loopback by default; this API
	// injects input and must not face a network.
	ListenAddr string

	// CatalogPath is the recording database location.
	CatalogPath string

	// Mode selects how capture sessions run.
	Mode macro.Mode

	// StopKey ends a recording from the keyboard.
	StopKey string

	// QueueSize caps the capture transport.
	QueueSize int

	// WorkerCmd overrides the command spawned for isolated capture, split
	// with shell quoting rules. Empty means respawning this executable in
	// capture worker mode.
	WorkerCmd []string

	// LogLevel is the minimum level written to stderr.
	LogLevel log.Level

	// ShutdownGrace bounds how long shutdown waits for in-flight work.
	ShutdownGrace time.Duration
}

// Load reads configuration from environment variables, with defaults fit
// for a single-user local daemon.
func Load() *Config {
	return &Config{
		ListenAddr:    getEnv(EnvListen, "127.0.0.1:8787"),
		CatalogPath:   getEnv(EnvCatalogPath, "macrod.db"),
		Mode:          parseMode(getEnv(EnvCaptureMode, "auto")),
		StopKey:       getEnv(macro.EnvStopKey, "f2"),
		QueueSize:     getEnvInt(macro.EnvQueueSize, macro.DefaultQueueSize),
		WorkerCmd:     getEnvCommand(EnvWorkerCmd),
		LogLevel:      parseLevel(getEnv(EnvLogLevel, "warn")),
		ShutdownGrace: time.Duration(getEnvInt(EnvShutdownGrace, 5000)) * time.Millisecond,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvCommand(key string) []string {
	if val := os.Getenv(key); val != "" {
		if argv, err := shellquote.Split(val); err == nil {
			return argv
		}
	}
	return nil
}

func parseMode(s string) macro.Mode {
	switch macro.Mode(s) {
	case macro.ModeInProcess, macro.ModeIsolated:
		return macro.Mode(s)
	}
	return macro.DefaultMode()
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.Debug
	case "error":
		return log.Error
	}
	return log.Warn
}
