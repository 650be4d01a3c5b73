package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/m365ctl/internal/config"
	"github.com/custodia-labs/m365ctl/internal/core/domain"
)

func TestLoginHint_PrintsOnce(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoginHint(&buf)
	var reasons []string
	h.OnRedirect(func(reason string) { reasons = append(reasons, reason) })

	h.RedirectToLogin("session expired, please log in again")
	h.RedirectToLogin("signed out in another window")

	assert.Equal(t, "Session expired, please log in again. Run 'm365ctl auth login' to continue.\n", buf.String())
	assert.Equal(t, []string{"session expired, please log in again", "signed out in another window"}, reasons)
}

func TestCapitalise(t *testing.T) {
	assert.Equal(t, "Session ended", capitalise(""))
	assert.Equal(t, "Abc", capitalise("abc"))
	assert.Equal(t, "1abc", capitalise("1abc"))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]format{"table": formatTable, "JSON": formatJSON, "yaml": formatYAML} {
		got, err := parseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseFormat("csv")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConfigSetServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := config.Default()
	withServices(t, &Services{Config: cfg, ConfigPath: path})

	res := runCLI(t, "", "config", "set-server", "https://m365.example.com/api")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Server set to https://m365.example.com/api")
	assert.Equal(t, "https://m365.example.com/api", cfg.Server.BaseURL)

	saved, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://m365.example.com/api", saved.Server.BaseURL)

	res = runCLI(t, "", "config", "set-server", "ftp://nope")
	require.Error(t, res.err)
}

func TestConfigShow(t *testing.T) {
	withServices(t, &Services{Config: config.Default(), ConfigPath: "/tmp/m365ctl/config.toml"})

	res := runCLI(t, "", "config", "show")

	require.NoError(t, res.err)
	assert.Contains(t, res.out, config.DefaultBaseURL)
	assert.Contains(t, res.out, "/tmp/m365ctl/config.toml")
}

func TestVersionCmd(t *testing.T) {
	original := version
	t.Cleanup(func() { version = original })
	SetVersion("1.4.0")

	res := runCLI(t, "", "version")

	require.NoError(t, res.err)
	assert.Contains(t, res.out, "m365ctl 1.4.0")
}

func TestDashboard_NotConfigured(t *testing.T) {
	withServices(t, &Services{})
	saved := tuiConfig
	t.Cleanup(func() { SetTUIConfig(saved) })
	SetTUIConfig(nil)

	res := runCLI(t, "", "dashboard")

	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "dashboard not configured")
}
