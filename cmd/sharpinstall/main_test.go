package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SHARPINSTALL_BINARY_INSTALL_PATH",
		"SHARPINSTALL_REQUEST_TIMEOUT_MS",
		"SHARPINSTALL_ARTIFACT_VERSION",
		"SHARPINSTALL_BUILD_FROM_SOURCE",
	} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := New()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNew_Subcommands(t *testing.T) {
	cmd := New()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"install", "status", "serve", "clean"} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "sharp.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("artifactVersion: 0.33.0\nrequestTimeoutMs: 1000\n"), 0o644))
	t.Setenv("SHARPINSTALL_ARTIFACT_VERSION", "0.33.2")

	cmd := New()
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", cfgFile,
		"--binary-install-path", dir,
		"--artifact-version", "0.33.4",
	}))
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "0.33.4", cfg.Version, "flag beats env and file")
	assert.Equal(t, time.Second, cfg.RequestTimeout, "file beats default")
	assert.Equal(t, dir, cfg.BinaryDir)
	assert.Equal(t, filepath.Join(dir, "tmp"), cfg.TempDir)
}

func TestLoadConfig_UnsetFlagsKeepEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SHARPINSTALL_ARTIFACT_VERSION", "0.33.2")
	t.Setenv("SHARPINSTALL_BUILD_FROM_SOURCE", "1")

	cmd := New()
	require.NoError(t, cmd.ParseFlags([]string{"--binary-install-path", t.TempDir()}))
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "0.33.2", cfg.Version)
	assert.True(t, cfg.BuildFromSource)
}

func TestStatus_ShowsInstalledModule(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sharp-test.node"), []byte("x"), 0o644))

	out, err := run(t, "status", "--binary-install-path", dir, "--loglevel", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Install dir")
	assert.Contains(t, out, dir)
	assert.NotContains(t, out, "│ no ")
}

func TestClean_RemovesStaging(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tmp", "build-01X"), 0o755))

	_, err := run(t, "clean", "--binary-install-path", dir, "--loglevel", "error")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "tmp"))
}

func TestInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "status", "--binary-install-path", t.TempDir(), "--loglevel", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestInvalidVersion(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "status", "--binary-install-path", t.TempDir(), "--artifact-version", "latest")
	assert.ErrorContains(t, err, "artifactVersion")
}
