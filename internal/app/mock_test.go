package app

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"sharpinstall/internal/domain"
)

// mockResolver returns a fixed platform key or error.
type mockResolver struct {
	key    domain.PlatformKey
	err    error
	called bool
}

func (m *mockResolver) Resolve() (domain.PlatformKey, error) {
	m.called = true
	return m.key, m.err
}

// mockLocator answers from a queue of results, one per call. The last entry
// repeats once the queue is drained.
type mockLocator struct {
	results []locateResult
	calls   int
	roots   []string
}

type locateResult struct {
	dir string
	err error
}

func found(dir string) locateResult { return locateResult{dir: dir} }
func missing() locateResult         { return locateResult{err: domain.ErrNotFound} }

func (m *mockLocator) Locate(root string) (string, error) {
	m.roots = append(m.roots, root)
	i := m.calls
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	m.calls++
	r := m.results[i]
	return r.dir, r.err
}

// mockDownloader records calls and returns configured values.
type mockDownloader struct {
	downloadFn func(url, dest string) (domain.Download, error)
	called     bool
	lastURL    string
	lastDest   string
}

func (m *mockDownloader) Download(_ context.Context, url, dest string) (domain.Download, error) {
	m.called = true
	m.lastURL = url
	m.lastDest = dest
	if m.downloadFn == nil {
		return domain.Download{Path: dest, Size: 1024}, nil
	}
	return m.downloadFn(url, dest)
}

// mockInstaller records calls and returns configured error.
type mockInstaller struct {
	err         error
	called      bool
	lastArchive string
	lastTarget  string
}

func (m *mockInstaller) Install(_ context.Context, archive, target string) error {
	m.called = true
	m.lastArchive = archive
	m.lastTarget = target
	return m.err
}

// mockBuilder records calls and returns configured error.
type mockBuilder struct {
	err         error
	called      bool
	lastVersion string
	lastWorkDir string
	lastBinDir  string
}

func (m *mockBuilder) Build(_ context.Context, version, workDir, binaryDir string) error {
	m.called = true
	m.lastVersion = version
	m.lastWorkDir = workDir
	m.lastBinDir = binaryDir
	return m.err
}

// mockLoader returns a module for the given directory.
type mockLoader struct {
	err     error
	called  bool
	lastDir string
}

func (m *mockLoader) Load(dir string) (*domain.Module, error) {
	m.called = true
	m.lastDir = dir
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Module{
		Dir:     dir,
		Path:    filepath.Join(dir, "sharp-linux-x64.node"),
		Format:  "elf",
		Machine: "x64",
	}, nil
}

// mockLocker counts lock and unlock calls.
type mockLocker struct {
	err       error
	unlockErr error
	locked    int
	unlocked  int
}

func (m *mockLocker) Lock(context.Context) (func() error, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.locked++
	return func() error { m.unlocked++; return m.unlockErr }, nil
}

// mockMetrics records stage observations.
type mockMetrics struct {
	mu     sync.Mutex
	stages []string
	bytes  int64
}

func (m *mockMetrics) ObserveStage(stage, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage+"/"+outcome)
}

func (m *mockMetrics) AddDownloadedBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes += n
}

// mockLogger collects messages by level. Loggers derived through With
// write into the same store.
type mockLogger struct {
	mu       sync.Mutex
	messages []string
	records  []logRecord
}

type logRecord struct {
	msg  string
	args []any
}

func (m *mockLogger) add(prefix, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, prefix+msg)
	m.records = append(m.records, logRecord{msg: msg, args: args})
}

// attrs returns the key/value pairs of every record logged as msg.
func (m *mockLogger) attrs(msg string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]any
	for _, r := range m.records {
		if r.msg != msg {
			continue
		}
		kv := map[string]any{}
		for i := 0; i+1 < len(r.args); i += 2 {
			if k, ok := r.args[i].(string); ok {
				kv[k] = r.args[i+1]
			}
		}
		out = append(out, kv)
	}
	return out
}

func (m *mockLogger) Debug(msg string, args ...any) { m.add("DEBUG: ", msg, args) }
func (m *mockLogger) Info(msg string, args ...any)  { m.add("", msg, args) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.add("WARN: ", msg, args) }
func (m *mockLogger) Error(msg string, args ...any) { m.add("ERROR: ", msg, args) }

func (m *mockLogger) With(args ...any) domain.Logger {
	return &boundLogger{root: m, args: args}
}

type boundLogger struct {
	root *mockLogger
	args []any
}

func (b *boundLogger) join(args []any) []any {
	return append(slices.Clone(b.args), args...)
}

func (b *boundLogger) Debug(msg string, args ...any) { b.root.add("DEBUG: ", msg, b.join(args)) }
func (b *boundLogger) Info(msg string, args ...any)  { b.root.add("", msg, b.join(args)) }
func (b *boundLogger) Warn(msg string, args ...any)  { b.root.add("WARN: ", msg, b.join(args)) }
func (b *boundLogger) Error(msg string, args ...any) { b.root.add("ERROR: ", msg, b.join(args)) }

func (b *boundLogger) With(args ...any) domain.Logger {
	return &boundLogger{root: b.root, args: b.join(args)}
}

var errBoom = errors.New("boom")
