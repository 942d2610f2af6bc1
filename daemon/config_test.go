package daemon

import (
	"testing"
	"time"

	"github.com/nikosalonen/macrod/log"
	"github.com/nikosalonen/macrod/macro"
	"github.com/nikosalonen/macrod/test/helpers/goroutinechecker"

	"github.com/stretchr/testify/assert"
)

// clearConfigEnv blanks every configuration variable so a test sees only
// what it sets itself.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvListen, EnvCatalogPath, EnvCaptureMode, EnvWorkerCmd, EnvLogLevel,
		EnvShutdownGrace, macro.EnvStopKey, macro.EnvQueueSize,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	defer goroutinechecker.New(t)()
	clearConfigEnv(t)

	conf := Load()
	assert.Equal(t, "127.0.0.1:8787", conf.ListenAddr)
	assert.Equal(t, "macrod.db", conf.CatalogPath)
	assert.Equal(t, macro.DefaultMode(), conf.Mode)
	assert.Equal(t, "f2", conf.StopKey)
	assert.Equal(t, macro.DefaultQueueSize, conf.QueueSize)
	assert.Nil(t, conf.WorkerCmd, "no override should mean self-respawn")
	assert.Equal(t, log.Warn, conf.LogLevel)
	assert.Equal(t, 5*time.Second, conf.ShutdownGrace)
}

func TestLoadOverrides(t *testing.T) {
	defer goroutinechecker.New(t)()
	clearConfigEnv(t)

	t.Setenv(EnvListen, "127.0.0.1:9999")
	t.Setenv(EnvCatalogPath, "/tmp/other.db")
	t.Setenv(EnvCaptureMode, "inprocess")
	t.Setenv(EnvWorkerCmd, "'/opt/macro tools/macrod' capture-worker")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvShutdownGrace, "250")
	t.Setenv(macro.EnvStopKey, "f9")
	t.Setenv(macro.EnvQueueSize, "500")

	conf := Load()
	assert.Equal(t, "127.0.0.1:9999", conf.ListenAddr)
	assert.Equal(t, "/tmp/other.db", conf.CatalogPath)
	assert.Equal(t, macro.ModeInProcess, conf.Mode)
	assert.Equal(t, []string{"/opt/macro tools/macrod", "capture-worker"}, conf.WorkerCmd,
		"worker command should split on shell quoting rules")
	assert.Equal(t, "f9", conf.StopKey)
	assert.Equal(t, 500, conf.QueueSize)
	assert.Equal(t, log.Debug, conf.LogLevel)
	assert.Equal(t, 250*time.Millisecond, conf.ShutdownGrace)
}

func TestLoadIgnoresBadNumbers(t *testing.T) {
	defer goroutinechecker.New(t)()
	clearConfigEnv(t)

	t.Setenv(macro.EnvQueueSize, "banana")
	t.Setenv(EnvShutdownGrace, "soonish")

	conf := Load()
	assert.Equal(t, macro.DefaultQueueSize, conf.QueueSize)
	assert.Equal(t, 5*time.Second, conf.ShutdownGrace)
}

func TestLoadIgnoresBrokenWorkerCommand(t *testing.T) {
	defer goroutinechecker.New(t)()
	clearConfigEnv(t)

	t.Setenv(EnvWorkerCmd, "unterminated 'quote")

	conf := Load()
	assert.Nil(t, conf.WorkerCmd, "an unparseable override should fall back to self-respawn")
}

func TestParseMode(t *testing.T) {
	defer goroutinechecker.New(t)()

	testCases := []struct {
		Name string
		In   string
		Want macro.Mode
	}{
		{Name: "InProcess", In: "inprocess", Want: macro.ModeInProcess},
		{Name: "Isolated", In: "isolated", Want: macro.ModeIsolated},
		{Name: "Auto", In: "auto", Want: macro.DefaultMode()},
		{Name: "Unknown", In: "quantum", Want: macro.DefaultMode()},
	}
	for _, tc := range testCases {
		t.Run(tc.Name, func(t2 *testing.T) {
			assert.Equal(t2, tc.Want, parseMode(tc.In))
		})
	}
}

func TestParseLevel(t *testing.T) {
	defer goroutinechecker.New(t)()

	testCases := []struct {
		Name string
		In   string
		Want log.Level
	}{
		{Name: "Debug", In: "debug", Want: log.Debug},
		{Name: "Error", In: "error", Want: log.Error},
		{Name: "Warn", In: "warn", Want: log.Warn},
		{Name: "Unknown", In: "loud", Want: log.Warn},
	}
	for _, tc := range testCases {
		t.Run(tc.Name, func(t2 *testing.T) {
			assert.Equal(t2, tc.Want, parseLevel(tc.In))
		})
	}
}
