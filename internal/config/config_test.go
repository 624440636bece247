package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/loadgen/internal/stresstest"
)

// isolate runs the test in an empty directory with no global config dir
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	prevDir, prevDB := ConfigDir, DatabasePath
	ConfigDir, DatabasePath = "", filepath.Join(dir, "loadgen.db")
	t.Cleanup(func() { ConfigDir, DatabasePath = prevDir, prevDB })

	return dir
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	AddFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), FilePermissions))
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	s, err := Load(newFlags(t), nil)
	require.NoError(t, err)

	assert.Empty(t, s.Targets)
	assert.Equal(t, stresstest.DefaultWorkers, s.Workers)
	assert.Equal(t, 5*time.Second, s.ReportInterval)
	assert.Equal(t, 5*time.Second, s.RequestTimeout)
	assert.Equal(t, time.Second, s.GracePeriod)
	assert.Zero(t, s.RPS)
	assert.Zero(t, s.Duration)
	assert.Empty(t, s.MetricsAddr)
	assert.True(t, s.History)
	assert.Equal(t, filepath.Join(dir, "loadgen.db"), s.DBPath)
	assert.Equal(t, "warn", s.LogLevel)
	assert.False(t, s.LogJSON)
	assert.Empty(t, s.ConfigFile)
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "loadgen.yaml"), `
targets:
  - http://file.local/a
workers: 10
report_interval: 2s
request_timeout: 3s
rps: 50
`)

	t.Run("file over default", func(t *testing.T) {
		s, err := Load(newFlags(t), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"http://file.local/a"}, s.Targets)
		assert.Equal(t, 10, s.Workers)
		assert.Equal(t, 2*time.Second, s.ReportInterval)
		assert.Equal(t, 3*time.Second, s.RequestTimeout)
		assert.Equal(t, 50.0, s.RPS)
		assert.Equal(t, time.Second, s.GracePeriod)
		assert.Equal(t, "loadgen.yaml", filepath.Base(s.ConfigFile))
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("LOADGEN_WORKERS", "20")
		t.Setenv("LOADGEN_TARGETS", "http://env.local/a, http://env.local/b")
		t.Setenv("LOADGEN_REPORT_INTERVAL", "1500ms")

		s, err := Load(newFlags(t), nil)
		require.NoError(t, err)
		assert.Equal(t, 20, s.Workers)
		assert.Equal(t, []string{"http://env.local/a", "http://env.local/b"}, s.Targets)
		assert.Equal(t, 1500*time.Millisecond, s.ReportInterval)
		assert.Equal(t, 3*time.Second, s.RequestTimeout)
	})

	t.Run("flag over env", func(t *testing.T) {
		t.Setenv("LOADGEN_WORKERS", "20")
		t.Setenv("LOADGEN_TARGETS", "http://env.local/a")

		s, err := Load(newFlags(t, "--workers", "30", "-t", "http://flag.local/a", "-t", "http://flag.local/b"), nil)
		require.NoError(t, err)
		assert.Equal(t, 30, s.Workers)
		assert.Equal(t, []string{"http://flag.local/a", "http://flag.local/b"}, s.Targets)
	})
}

func TestLoad_PositionalTargets(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "loadgen.yaml"), "targets: [http://file.local/a]\n")

	s, err := Load(newFlags(t), []string{"http://arg.local/a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://arg.local/a"}, s.Targets)

	s, err = Load(newFlags(t, "-t", "http://flag.local/a"), []string{"http://arg.local/a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://flag.local/a", "http://arg.local/a"}, s.Targets)
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yml")
	writeFile(t, path, "workers: 7\nhistory: false\nlog_level: debug\n")

	s, err := Load(newFlags(t, "--config", path), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Workers)
	assert.False(t, s.History)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, path, s.ConfigFile)
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(newFlags(t, "--config", filepath.Join(dir, "absent.yaml")), nil)
	assert.Error(t, err)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "loadgen.yaml"), "workers: [\n")

	_, err := Load(newFlags(t), nil)
	assert.Error(t, err)
}

func TestWriteSample(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "conf", "loadgen.yaml")

	require.NoError(t, WriteSample(path))
	assert.Error(t, WriteSample(path), "must not overwrite")

	s, err := Load(newFlags(t, "--config", path), nil)
	require.NoError(t, err)
	assert.Len(t, s.Targets, 2)
	assert.Equal(t, stresstest.DefaultWorkers, s.Workers)
	assert.Equal(t, stresstest.DefaultReportInterval, s.ReportInterval)
	assert.Equal(t, stresstest.DefaultGracePeriod, s.GracePeriod)
	assert.True(t, s.History)

	cfg := s.LoadTestConfig("loadgen/test")
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "loadgen/test", cfg.UserAgent)
}
