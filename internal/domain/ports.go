package domain

import (
	"context"
	"time"
)

// PlatformResolver maps the running OS and CPU to a platform key.
type PlatformResolver interface {
	Resolve() (PlatformKey, error)
}

// Locator finds an installed native module beneath a root directory.
// It returns the directory containing the module, or ErrNotFound.
type Locator interface {
	Locate(rootDir string) (string, error)
}

// Downloader fetches a URL to a local file, following redirects.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) (Download, error)
}

// ArchiveInstaller unpacks a prebuilt archive into targetDir, flattens the
// build output layout and removes the archive and its staging directory.
type ArchiveInstaller interface {
	Install(ctx context.Context, archivePath, targetDir string) error
}

// Builder compiles the native module from package sources in workDir and
// relocates the compiled output under binaryDir.
type Builder interface {
	Build(ctx context.Context, version, workDir, binaryDir string) error
}

// Loader loads the module found in dir and returns it as a capability.
type Loader interface {
	Load(dir string) (*Module, error)
}

// Locker guards the canonical directory for the duration of one install.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// Metrics records stage timings and outcomes.
type Metrics interface {
	ObserveStage(stage, outcome string, elapsed time.Duration)
	AddDownloadedBytes(n int64)
}

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type loggerKey struct{}

// ContextWithLogger returns a copy of ctx carrying l. Adapters log through
// it so per-attempt attributes reach every record.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger carried by ctx, or fallback.
func LoggerFromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return fallback
}
