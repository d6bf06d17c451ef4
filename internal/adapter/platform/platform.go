package platform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"sharpinstall/internal/domain"
)

var osNames = map[string]string{
	"windows": "win32",
	"darwin":  "darwin",
	"linux":   "linux",
}

var archNames = map[string]string{
	"amd64": "x64",
	"386":   "ia32",
	"arm64": "arm64",
	"arm":   "arm",
	"s390x": "s390x",
}

// supported lists the (os, arch) pairs that have a native build.
var supported = map[string][]string{
	"win32":  {"x64", "ia32"},
	"darwin": {"x64", "arm64"},
	"linux":  {"x64", "arm64", "arm", "s390x"},
}

// Resolver maps GOOS/GOARCH (and the libc flavor on Linux) to a platform key.
type Resolver struct {
	goos   string
	goarch string
	libc   LibcDetector
}

// New creates a Resolver for the running process.
func New() *Resolver {
	return &Resolver{goos: runtime.GOOS, goarch: runtime.GOARCH, libc: SystemLibcDetector()}
}

// NewFor creates a Resolver for an explicit GOOS/GOARCH pair.
func NewFor(goos, goarch string, libc LibcDetector) *Resolver {
	return &Resolver{goos: goos, goarch: goarch, libc: libc}
}

// Resolve returns the platform key or an *domain.UnsupportedPlatformError.
func (r *Resolver) Resolve() (domain.PlatformKey, error) {
	osName, okOS := osNames[r.goos]
	arch, okArch := archNames[r.goarch]
	if !okOS || !okArch || !contains(supported[osName], arch) {
		return domain.PlatformKey{}, &domain.UnsupportedPlatformError{OS: r.goos, Arch: r.goarch}
	}

	key := domain.PlatformKey{OS: osName, Arch: arch}
	if osName == "linux" && (arch == "x64" || arch == "arm64") {
		key.Musl = r.libc.IsMusl()
	}
	return key, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// LibcDetector decides whether the C library is musl. Report is consulted first;
// when it yields no glibc version the dynamic linker candidates are read and
// searched for a musl marker. If no linker can be read, musl is assumed.
type LibcDetector struct {
	Report   func() (string, error)
	Linkers  []string // glob patterns, first readable match wins
	ReadFile func(string) ([]byte, error)
}

// SystemLibcDetector returns a detector backed by getconf and the usual linker paths.
func SystemLibcDetector() LibcDetector {
	return LibcDetector{
		Report: getconfLibcVersion,
		Linkers: []string{
			"/usr/bin/ldd",
			"/bin/ldd",
			"/lib/ld-musl-*.so.1",
			"/lib/ld-linux*.so.*",
			"/lib64/ld-linux*.so.*",
		},
		ReadFile: os.ReadFile,
	}
}

// IsMusl applies the three detection tiers in order.
func (p LibcDetector) IsMusl() bool {
	if p.Report != nil {
		if v, err := p.Report(); err == nil && strings.Contains(strings.ToLower(v), "glibc") {
			return false
		}
	}

	readFile := p.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	for _, pattern := range p.Linkers {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			data, err := readFile(m)
			if err != nil {
				continue
			}
			return bytes.Contains(data, []byte("musl"))
		}
	}
	return true
}

// getconfLibcVersion returns e.g. "glibc 2.39"; musl's getconf has no such key.
func getconfLibcVersion() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "getconf", "GNU_LIBC_VERSION").Output()
	if err != nil {
		return "", fmt.Errorf("getconf: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// DefaultBinaryDir returns <data root>/sharpinstall/sharp, where the data root
// is $XDG_DATA_HOME or ~/.local/share.
func DefaultBinaryDir() (string, error) {
	root := os.Getenv("XDG_DATA_HOME")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		root = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(root, "sharpinstall", domain.PackageName), nil
}
