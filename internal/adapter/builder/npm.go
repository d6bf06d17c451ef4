package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"sharpinstall/internal/domain"
)

// OutputDir is the directory node-gyp writes compiled artifacts to, relative
// to the package root.
const OutputDir = "build"

// projectManifest marks workDir as a throwaway npm project so the install
// does not walk up into an unrelated package.json.
const projectManifest = `{
  "name": "sharpinstall-build",
  "private": true,
  "description": "temporary project for building the sharp native module"
}
`

// NPMBuilder compiles the native module from the published package sources.
type NPMBuilder struct {
	runner         Runner
	packageManager string
	logger         domain.Logger
}

// NewNPMBuilder creates a builder. packageManager is the npm-compatible CLI
// used to fetch sources (npm by default).
func NewNPMBuilder(runner Runner, packageManager string, logger domain.Logger) *NPMBuilder {
	if packageManager == "" {
		packageManager = "npm"
	}
	return &NPMBuilder{runner: runner, packageManager: packageManager, logger: logger}
}

// Build installs sharp@version with its build toolchain into workDir, runs
// node-gyp inside the package and moves the package's build directory to
// binaryDir/build. A successful build without output is logged, not failed.
func (b *NPMBuilder) Build(ctx context.Context, version, workDir, binaryDir string) error {
	log := domain.LoggerFromContext(ctx, b.logger)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return &domain.BuildError{Step: "prepare", Err: err}
	}

	manifest := filepath.Join(workDir, "package.json")
	if _, err := os.Stat(manifest); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(manifest, []byte(projectManifest), 0o644); err != nil {
			return &domain.BuildError{Step: "prepare", Err: err}
		}
	}

	log.Info("installing package sources", "package", domain.PackageName, "version", version, "dir", workDir)
	if err := b.runner.Run(ctx, workDir, b.packageManager,
		"install",
		"--no-save",
		"--no-package-lock",
		"--ignore-scripts",
		"--no-audit",
		"--no-fund",
		domain.PackageName+"@"+version,
		"node-addon-api",
		"node-gyp",
	); err != nil {
		return err
	}

	pkgDir := filepath.Join(workDir, "node_modules", domain.PackageName)
	log.Info("building native module", "dir", pkgDir)
	if err := b.runner.Run(ctx, pkgDir, nodeGyp(workDir), "rebuild"); err != nil {
		return err
	}

	out := filepath.Join(pkgDir, OutputDir)
	if info, err := os.Stat(out); err != nil || !info.IsDir() {
		log.Warn("build reported success but produced no output", "expected", out)
		return nil
	}

	dst := filepath.Join(binaryDir, OutputDir)
	if err := os.RemoveAll(dst); err != nil {
		return &domain.BuildError{Step: "relocate", Err: err}
	}
	if err := moveTree(out, dst); err != nil {
		return &domain.BuildError{Step: "relocate", Err: fmt.Errorf("move %s to %s: %w", out, dst, err)}
	}
	log.Info("build output relocated", "path", dst)
	return nil
}

func nodeGyp(workDir string) string {
	name := "node-gyp"
	if runtime.GOOS == "windows" {
		name += ".cmd"
	}
	return filepath.Join(workDir, "node_modules", ".bin", name)
}
