package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound means no native module exists under the searched directory.
	ErrNotFound = errors.New("native module not found")
	// ErrNoPrebuilt means the registry has no archive for the platform key.
	ErrNoPrebuilt = errors.New("no prebuilt archive for platform")
	// ErrLocked means another process holds the install lock.
	ErrLocked = errors.New("install directory is locked")
)

// UnsupportedPlatformError is returned for OS/arch pairs outside the supported set.
type UnsupportedPlatformError struct {
	OS   string
	Arch string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %s/%s", e.OS, e.Arch)
}

// DownloadError carries either a terminal HTTP status or the I/O error that
// aborted the transfer.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Is reports 404 and 410 responses as ErrNoPrebuilt.
func (e *DownloadError) Is(target error) bool {
	return target == ErrNoPrebuilt && (e.Status == http.StatusNotFound || e.Status == http.StatusGone)
}

// ExtractError is returned for corrupt or unsafe archives.
type ExtractError struct {
	Archive string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// BuildError is returned when a build subprocess fails.
type BuildError struct {
	Step     string
	ExitCode int
	Err      error
}

func (e *BuildError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("build step %q exited with code %d", e.Step, e.ExitCode)
	}
	return fmt.Sprintf("build step %q: %v", e.Step, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// LoadError is returned when an installed module cannot be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
