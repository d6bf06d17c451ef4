package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharpinstall/internal/adapter/logger"
	"sharpinstall/internal/domain"
)

type call struct {
	dir  string
	name string
	args []string
}

// fakeRunner records calls; onCall may simulate side effects or failures.
type fakeRunner struct {
	calls  []call
	onCall func(n int, c call) error
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) error {
	c := call{dir: dir, name: name, args: args}
	f.calls = append(f.calls, c)
	if f.onCall != nil {
		return f.onCall(len(f.calls), c)
	}
	return nil
}

// compiles simulates node-gyp writing build/Release/sharp-linux-x64.node.
func compiles(n int, c call) error {
	if n != 2 {
		return nil
	}
	out := filepath.Join(c.dir, "build", "Release")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(out, "sharp-linux-x64.node"), []byte("native"), 0o755)
}

func TestBuild_RelocatesOutput(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "work")
	binaryDir := t.TempDir()
	runner := &fakeRunner{onCall: compiles}

	b := NewNPMBuilder(runner, "", logger.Discard())
	require.NoError(t, b.Build(context.Background(), "1.2.3", workDir, binaryDir))

	require.Len(t, runner.calls, 2)
	install := runner.calls[0]
	assert.Equal(t, workDir, install.dir)
	assert.Equal(t, "npm", install.name)
	assert.Equal(t, "install", install.args[0])
	assert.Contains(t, install.args, "--no-save")
	assert.Contains(t, install.args, "sharp@1.2.3")
	assert.Contains(t, install.args, "node-gyp")

	rebuild := runner.calls[1]
	assert.Equal(t, filepath.Join(workDir, "node_modules", "sharp"), rebuild.dir)
	assert.Equal(t, nodeGyp(workDir), rebuild.name)
	assert.Equal(t, []string{"rebuild"}, rebuild.args)

	assert.FileExists(t, filepath.Join(binaryDir, "build", "Release", "sharp-linux-x64.node"))
	assert.NoDirExists(t, filepath.Join(workDir, "node_modules", "sharp", "build"))
	assert.FileExists(t, filepath.Join(workDir, "package.json"))
}

func TestBuild_KeepsExistingManifest(t *testing.T) {
	workDir := t.TempDir()
	manifest := filepath.Join(workDir, "package.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"name":"host"}`), 0o644))

	b := NewNPMBuilder(&fakeRunner{onCall: compiles}, "pnpm", logger.Discard())
	require.NoError(t, b.Build(context.Background(), "1.2.3", workDir, t.TempDir()))

	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"host"}`, string(data))
}

func TestBuild_InstallFailureStops(t *testing.T) {
	runner := &fakeRunner{onCall: func(n int, c call) error {
		return &domain.BuildError{Step: "npm install", ExitCode: 1}
	}}
	b := NewNPMBuilder(runner, "npm", logger.Discard())
	err := b.Build(context.Background(), "1.2.3", t.TempDir(), t.TempDir())

	var buildErr *domain.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 1, buildErr.ExitCode)
	assert.Len(t, runner.calls, 1)
}

func TestBuild_MissingOutputIsNotFatal(t *testing.T) {
	binaryDir := t.TempDir()
	b := NewNPMBuilder(&fakeRunner{}, "npm", logger.Discard())

	require.NoError(t, b.Build(context.Background(), "1.2.3", t.TempDir(), binaryDir))
	assert.NoDirExists(t, filepath.Join(binaryDir, "build"))
}

func TestBuild_ReplacesStaleOutput(t *testing.T) {
	binaryDir := t.TempDir()
	stale := filepath.Join(binaryDir, "build", "Release", "obj.target")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	b := NewNPMBuilder(&fakeRunner{onCall: compiles}, "npm", logger.Discard())
	require.NoError(t, b.Build(context.Background(), "1.2.3", t.TempDir(), binaryDir))

	assert.NoDirExists(t, stale)
	assert.FileExists(t, filepath.Join(binaryDir, "build", "Release", "sharp-linux-x64.node"))
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Release", ".deps"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Release", "x.node"), []byte("native"), 0o755))

	dst := filepath.Join(t.TempDir(), "build")
	require.NoError(t, copyTree(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "Release", "x.node"))
	require.NoError(t, err)
	assert.Equal(t, "native", string(data))
	assert.DirExists(t, filepath.Join(dst, "Release", ".deps"))
}
