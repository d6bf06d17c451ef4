package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"sharpinstall/internal/domain"
)

// Runner executes one build step as a child process.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs build steps with os/exec, forwarding each output line to
// the logger carried by the context, or the runner's own. A non-zero exit becomes a *domain.BuildError.
type ExecRunner struct {
	logger domain.Logger
}

// NewExecRunner creates a runner that logs child output line by line.
func NewExecRunner(logger domain.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run starts name in dir and blocks until it exits. Canceling ctx kills the
// child's whole process group.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	log := domain.LoggerFromContext(ctx, r.logger)
	step := strings.Join(append([]string{name}, args...), " ")

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error { return killGroup(cmd.Process) }
	cmd.WaitDelay = 5 * time.Second

	stdout := &lineLogger{log: log.Info, args: []any{"stream", "stdout"}}
	stderr := &lineLogger{log: log.Info, args: []any{"stream", "stderr"}}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return &domain.BuildError{Step: step, Err: fmt.Errorf("start: %w", err)}
	}
	log.Info("build step started", "step", step, "pid", cmd.Process.Pid, "dir", dir)

	err := cmd.Wait()
	stdout.flush()
	stderr.flush()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &domain.BuildError{Step: step, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &domain.BuildError{Step: step, Err: err}
	}
	log.Info("build step finished", "step", step)
	return nil
}

// lineLogger is an io.Writer that emits one log record per complete line.
type lineLogger struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	log  func(msg string, args ...any)
	args []any
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// incomplete line: keep it for the next write
			l.buf.Reset()
			l.buf.WriteString(line)
			return len(p), nil
		}
		l.emit(line)
	}
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	l.log("build output", append([]any{"line", line}, l.args...)...)
}
