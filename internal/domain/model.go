package domain

import (
	"fmt"
	"time"
)

// ModuleSuffix is the file suffix of a native addon module.
const ModuleSuffix = ".node"

// PackageName is the npm package whose native binding is provisioned.
const PackageName = "sharp"

// InstallConfig is the resolved, immutable configuration for one process.
type InstallConfig struct {
	BinaryDir       string        // canonical binary directory
	TempDir         string        // staging root, normally BinaryDir/tmp
	Version         string        // artifact version without leading "v"
	NAPIVersion     int           // binary ABI tag
	RequestTimeout  time.Duration // per-request HTTP timeout
	MaxRedirects    int
	RegistryURL     string
	BuildFromSource bool
	PackageManager  string
}

// PlatformKey identifies an OS + CPU (+ libc) combination.
type PlatformKey struct {
	OS   string // win32, darwin, linux
	Arch string // x64, ia32, arm64, arm, s390x
	Musl bool
}

// String renders the key as "<os>-<arch>" or "<os>musl-<arch>".
func (k PlatformKey) String() string {
	if k.Musl {
		return k.OS + "musl-" + k.Arch
	}
	return k.OS + "-" + k.Arch
}

// ArtifactName returns the archive base name for a version, ABI tag and platform,
// e.g. "sharp-v0.33.5-napi-v9-linux-x64".
func ArtifactName(version string, napi int, key PlatformKey) string {
	return fmt.Sprintf("%s-v%s-napi-v%d-%s", PackageName, version, napi, key)
}

// ArchiveURL returns the prebuilt archive location on the registry mirror.
func ArchiveURL(registry, version, artifactName string) string {
	return fmt.Sprintf("%s/-/binary/%s/v%s/%s.tar.gz", registry, PackageName, version, artifactName)
}

// Download describes a completed fetch.
type Download struct {
	Path   string
	Size   int64
	Digest string // hex BLAKE3 of the bytes written
}

// Module is a loaded native module, the capability exposed to the host.
type Module struct {
	Dir     string `json:"dir"`
	Path    string `json:"path"`
	Format  string `json:"format"` // elf, macho, pe
	Machine string `json:"machine"`
	Size    int64  `json:"size"`
}
