// Package config assembles the install configuration from defaults, an
// optional YAML/JSONC file and SHARPINSTALL_* environment variables. CLI
// flags are applied by the caller before Resolve.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/jsonc"
	"sigs.k8s.io/yaml"

	"sharpinstall/internal/adapter/platform"
	"sharpinstall/internal/domain"
)

const (
	DefaultArtifactVersion  = "0.33.5"
	DefaultRequestTimeoutMs = 60000
	DefaultNAPIVersion      = 9
	DefaultRegistryURL      = "https://registry.npmmirror.com"
	DefaultMaxRedirects     = 10
	DefaultPackageManager   = "npm"

	envBinaryInstallPath = "SHARPINSTALL_BINARY_INSTALL_PATH"
	envRequestTimeoutMs  = "SHARPINSTALL_REQUEST_TIMEOUT_MS"
	envArtifactVersion   = "SHARPINSTALL_ARTIFACT_VERSION"
	envBuildFromSource   = "SHARPINSTALL_BUILD_FROM_SOURCE"
)

// Options mirrors the recognized configuration keys.
type Options struct {
	BinaryInstallPath string `json:"binaryInstallPath"`
	RequestTimeoutMs  int    `json:"requestTimeoutMs"`
	ArtifactVersion   string `json:"artifactVersion"`
	NAPIVersion       int    `json:"napiVersion"`
	BuildFromSource   bool   `json:"buildFromSource"`
	RegistryURL       string `json:"registryURL"`
	MaxRedirects      int    `json:"maxRedirects"`
	PackageManager    string `json:"packageManager"`
}

// Defaults returns the built-in options. BinaryInstallPath is left empty and
// filled from the platform data directory by Resolve.
func Defaults() Options {
	return Options{
		RequestTimeoutMs: DefaultRequestTimeoutMs,
		ArtifactVersion:  DefaultArtifactVersion,
		NAPIVersion:      DefaultNAPIVersion,
		RegistryURL:      DefaultRegistryURL,
		MaxRedirects:     DefaultMaxRedirects,
		PackageManager:   DefaultPackageManager,
	}
}

// Load returns defaults overlaid with the file at path (if non-empty) and
// then with the environment.
func Load(path string) (Options, error) {
	opts := Defaults()
	if path != "" {
		if err := opts.LoadFile(path); err != nil {
			return opts, err
		}
	}
	if err := opts.ApplyEnv(); err != nil {
		return opts, err
	}
	return opts, nil
}

// LoadFile overlays the keys present in a YAML, JSON or JSONC file. Unknown
// keys are rejected.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.UnmarshalStrict(data, o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays SHARPINSTALL_* variables that are set.
func (o *Options) ApplyEnv() error {
	if v := os.Getenv(envBinaryInstallPath); v != "" {
		o.BinaryInstallPath = v
	}
	if v := os.Getenv(envArtifactVersion); v != "" {
		o.ArtifactVersion = v
	}
	if v := os.Getenv(envRequestTimeoutMs); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envRequestTimeoutMs, err)
		}
		o.RequestTimeoutMs = n
	}
	if v := os.Getenv(envBuildFromSource); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envBuildFromSource, err)
		}
		o.BuildFromSource = b
	}
	return nil
}

// Resolve validates the options and produces the immutable InstallConfig.
func (o Options) Resolve() (domain.InstallConfig, error) {
	dir := o.BinaryInstallPath
	if dir == "" {
		d, err := platform.DefaultBinaryDir()
		if err != nil {
			return domain.InstallConfig{}, err
		}
		dir = d
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return domain.InstallConfig{}, fmt.Errorf("binaryInstallPath: %w", err)
	}

	v, err := semver.NewVersion(o.ArtifactVersion)
	if err != nil {
		return domain.InstallConfig{}, fmt.Errorf("artifactVersion %q: %w", o.ArtifactVersion, err)
	}
	if o.RequestTimeoutMs <= 0 {
		return domain.InstallConfig{}, fmt.Errorf("requestTimeoutMs must be positive, got %d", o.RequestTimeoutMs)
	}
	if o.NAPIVersion <= 0 {
		return domain.InstallConfig{}, fmt.Errorf("napiVersion must be positive, got %d", o.NAPIVersion)
	}
	if o.MaxRedirects <= 0 {
		return domain.InstallConfig{}, fmt.Errorf("maxRedirects must be positive, got %d", o.MaxRedirects)
	}
	u, err := url.ParseRequestURI(o.RegistryURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.InstallConfig{}, fmt.Errorf("registryURL %q is not an http(s) URL", o.RegistryURL)
	}
	pm := o.PackageManager
	if pm == "" {
		pm = DefaultPackageManager
	}

	return domain.InstallConfig{
		BinaryDir:       dir,
		TempDir:         filepath.Join(dir, "tmp"),
		Version:         v.String(),
		NAPIVersion:     o.NAPIVersion,
		RequestTimeout:  time.Duration(o.RequestTimeoutMs) * time.Millisecond,
		MaxRedirects:    o.MaxRedirects,
		RegistryURL:     strings.TrimRight(o.RegistryURL, "/"),
		BuildFromSource: o.BuildFromSource,
		PackageManager:  pm,
	}, nil
}
