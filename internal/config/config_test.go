package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Std())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
base_url = "https://console.example.com/api"
timeout = "5s"

[cache]
ttl = "2m"

[sweep]
concurrency = 8
`), 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "https://console.example.com/api", cfg.Server.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, 8, cfg.Sweep.Concurrency)
	assert.Equal(t, DefaultSweepRPS, cfg.Sweep.RequestsPerSecond, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nbase_url = \"https://file.example.com\"\n"), 0o600))
	t.Setenv("M365CTL_SERVER_BASE_URL", "https://env.example.com/api")
	t.Setenv("M365CTL_CACHE_TTL", "0s")
	t.Setenv("M365CTL_LOG_VERBOSE", "true")
	t.Setenv("M365CTL_LOG_FORMAT", "json")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/api", cfg.Server.BaseURL)
	assert.Zero(t, cfg.Cache.TTL)
	assert.True(t, cfg.Log.Verbose)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("M365CTL_SWEEP_CONCURRENCY=2\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("M365CTL_SWEEP_CONCURRENCY") })

	cfg, err := Load(filepath.Join(dir, "config.toml"))

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Sweep.Concurrency)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad toml", content: "[server\n"},
		{name: "bad duration", content: "[cache]\nttl = \"soon\"\n"},
		{name: "relative url", content: "[server]\nbase_url = \"/api\"\n"},
		{name: "ftp url", content: "[server]\nbase_url = \"ftp://x/api\"\n"},
		{name: "zero concurrency", content: "[sweep]\nconcurrency = 0\n"},
		{name: "log format", content: "[log]\nformat = \"xml\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)

			assert.Error(t, err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Server.BaseURL = "https://console.example.com/api"
	cfg.Cache.TTL = Duration(90 * time.Second)

	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1m30s")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "not a url"

	err := Save(filepath.Join(t.TempDir(), "config.toml"), cfg)

	assert.Error(t, err)
}

func TestStateDir_Override(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	got, err := StateDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)
}

func TestLoadFile_IgnoresEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("M365CTL_SERVER_BASE_URL", "https://env.example.com/api")

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.Server.BaseURL)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
