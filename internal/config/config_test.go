package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so a developer's own
// autopr.yaml or .env cannot leak in.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, BackendE2B, cfg.Sandbox.Backend)
	assert.Equal(t, "Nodejs", cfg.Template())
	assert.Equal(t, "e2b_script_content.sh", cfg.Script.Path)
	assert.Equal(t, "/home/user/e2b_script_content.sh", cfg.Script.RemotePath)
	assert.Equal(t, "e2b.app", cfg.E2B.Domain)
	assert.Equal(t, time.Hour, cfg.E2B.Lifetime)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PORT", "9090")
	t.Setenv("AUTOPR_SANDBOX_BACKEND", "docker")
	t.Setenv("AUTOPR_DOCKER_IMAGE", "bash:5")
	t.Setenv("AUTOPR_E2B_LIFETIME", "15m")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendDocker, cfg.Sandbox.Backend)
	assert.Equal(t, "bash:5", cfg.Template())
	assert.Equal(t, 15*time.Minute, cfg.E2B.Lifetime)
}

func TestLoad_ConfigFileAndDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("PORT", "")

	yaml := "sandbox:\n  template: custom-template\nscript:\n  path: scripts/run.sh\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "autopr.yaml"), []byte(yaml), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTOPR_E2B_DOMAIN=e2b.example.dev\n"), 0o644))
	// t.Setenv registers cleanup so the variable godotenv sets does not leak.
	t.Setenv("AUTOPR_E2B_DOMAIN", "")
	require.NoError(t, os.Unsetenv("AUTOPR_E2B_DOMAIN"))

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "custom-template", cfg.Template())
	assert.Equal(t, "scripts/run.sh", cfg.Script.Path)
	assert.Equal(t, "e2b.example.dev", cfg.E2B.Domain)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		chdirTemp(t)
		t.Setenv("AUTOPR_SANDBOX_BACKEND", "firecracker")

		_, err := Load(Options{})
		assert.ErrorContains(t, err, "unknown sandbox backend")
	})

	t.Run("explicit config file missing", func(t *testing.T) {
		dir := chdirTemp(t)

		_, err := Load(Options{ConfigFile: filepath.Join(dir, "nope.yaml")})
		assert.Error(t, err)
	})
}
