//go:build unix

package builder

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharpinstall/internal/adapter/logger"
	"sharpinstall/internal/domain"
)

func capture(t *testing.T) (*logger.Slog, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := logger.New(&buf, logger.FormatText, slog.LevelDebug)
	require.NoError(t, err)
	return l, &buf
}

func TestExecRunner_StreamsOutput(t *testing.T) {
	l, buf := capture(t)
	r := NewExecRunner(l)

	err := r.Run(context.Background(), t.TempDir(), "sh", "-c", "echo gyp info ok; printf 'no newline'; echo warn >&2")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `line="gyp info ok"`)
	assert.Contains(t, out, `line="no newline"`)
	assert.Contains(t, out, "stream=stderr")
}

func TestExecRunner_LogsThroughContextLogger(t *testing.T) {
	l, buf := capture(t)
	ctx := domain.ContextWithLogger(context.Background(), l.With("attempt", "01B"))

	require.NoError(t, NewExecRunner(logger.Discard()).Run(ctx, t.TempDir(), "sh", "-c", "echo compiling"))

	out := buf.String()
	assert.Contains(t, out, `line=compiling`)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		assert.Contains(t, line, "attempt=01B")
	}
}

func TestExecRunner_ExitCode(t *testing.T) {
	r := NewExecRunner(logger.Discard())
	err := r.Run(context.Background(), t.TempDir(), "sh", "-c", "exit 3")

	var buildErr *domain.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 3, buildErr.ExitCode)
	assert.Equal(t, "sh -c exit 3", buildErr.Step)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(logger.Discard())
	err := r.Run(context.Background(), t.TempDir(), "definitely-not-a-real-build-tool")

	var buildErr *domain.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Zero(t, buildErr.ExitCode)
}

func TestExecRunner_CancelKillsChild(t *testing.T) {
	r := NewExecRunner(logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, t.TempDir(), "sh", "-c", "sleep 30")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}
