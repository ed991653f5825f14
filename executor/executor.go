// Package executor runs external commands under a wall-clock deadline.
//
// A command's merged stdout/stderr accumulates in a shared buffer while one
// goroutine waits for the child to exit. The caller waits on that goroutine's
// completion signal and a timer, and whichever fires first decides the
// outcome. When the deadline wins, the caller gets the output captured so far
// plus a short diagnostic summary, and the child is left running: it is
// detached, not killed, and whatever it writes afterwards is dropped. The OS
// reclaims it when it exits on its own. Executor.KillOnTimeout switches to
// killing the child's process group instead.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/logging"
)

// Outcome is the result of one bounded run.
//
// Completed and WallClockExceeded are never both true. Both false means the
// command never ran (spawn failure) or the caller's context ended the wait;
// Err says which.
type Outcome struct {
	Output            []byte
	Completed         bool
	WallClockExceeded bool
	Diagnostics       string
	ExitCode          int
	Err               error
}

// Report returns the output followed by the diagnostics, if any.
func (o Outcome) Report() string {
	return string(o.Output) + o.Diagnostics
}

type Executor struct {
	// Shell is the interpreter prefix the command string is appended to.
	// Empty means sh -c (cmd /C on Windows).
	Shell         []string
	KillOnTimeout bool
	Logger        *slog.Logger
}

var defaultExecutor = &Executor{}

// RunBounded runs command through the default executor.
func RunBounded(ctx context.Context, command string, deadline time.Duration) Outcome {
	return defaultExecutor.Run(ctx, command, deadline)
}

// Run runs command through the shell.
func (e *Executor) Run(ctx context.Context, command string, deadline time.Duration) Outcome {
	argv := append(e.shell(), command)
	return e.RunArgs(ctx, argv, deadline)
}

// RunArgs runs argv directly, without a shell.
func (e *Executor) RunArgs(ctx context.Context, argv []string, deadline time.Duration) Outcome {
	logger := logging.OrDefault(e.Logger)
	if len(argv) == 0 {
		return spawnFailure(errors.New("empty command"))
	}

	// exec.Command rather than CommandContext: the child must be able to
	// outlive an abandoned wait.
	cmd := exec.Command(argv[0], argv[1:]...)
	out := &captureBuffer{}
	cmd.Stdout = out
	cmd.Stderr = out
	if e.KillOnTimeout {
		setProcessGroup(cmd)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		logger.Warn("command failed to start", "argv", argv, "error", err)
		return spawnFailure(err)
	}
	logger.Debug("command started", "argv", argv, "pid", cmd.Process.Pid, "deadline", deadline)

	// Buffered so the waiter can always finish, even after we stop listening.
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		o := Outcome{
			Output:    out.Bytes(),
			Completed: true,
			ExitCode:  cmd.ProcessState.ExitCode(),
		}
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			o.Err = waitErr
		}
		logger.Debug("command finished", "pid", cmd.Process.Pid, "exit_code", o.ExitCode, "elapsed", time.Since(start))
		return o

	case <-timer.C:
		captured := out.Detach()
		if e.KillOnTimeout {
			killGroup(cmd, logger, "deadline")
		} else {
			logger.Warn("command exceeded deadline, detaching", "pid", cmd.Process.Pid, "deadline", deadline)
		}
		return Outcome{
			Output:            captured,
			WallClockExceeded: true,
			Diagnostics:       Diagnose(captured, deadline),
			ExitCode:          -1,
		}

	case <-ctx.Done():
		captured := out.Detach()
		if e.KillOnTimeout {
			killGroup(cmd, logger, "cancelled")
		}
		logger.Warn("command wait cancelled", "pid", cmd.Process.Pid, "error", ctx.Err())
		return Outcome{
			Output:   captured,
			ExitCode: -1,
			Err:      ctx.Err(),
		}
	}
}

// killProcess is replaced in tests.
var killProcess = killProcessGroup

func killGroup(cmd *exec.Cmd, logger *slog.Logger, reason string) {
	if err := killProcess(cmd); err != nil {
		logger.Warn("could not kill command", "pid", cmd.Process.Pid, "reason", reason, "error", err)
	}
}

func (e *Executor) shell() []string {
	if len(e.Shell) > 0 {
		return append([]string(nil), e.Shell...)
	}
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}

func spawnFailure(err error) Outcome {
	return Outcome{
		Output:   []byte(fmt.Sprintf("Error executing command: %v", err)),
		ExitCode: -1,
		Err:      errors.WrapKind(errors.ErrSpawnFailure, err, "starting command"),
	}
}

// Diagnose summarises output captured before a deadline fired.
func Diagnose(captured []byte, deadline time.Duration) string {
	text := string(captured)

	var b strings.Builder
	fmt.Fprintf(&b, "\n[Command took longer than %s seconds. Analysis of partial output:]", formatSeconds(deadline))
	fmt.Fprintf(&b, "\n- Output length: %d characters", utf8.RuneCountInString(text))
	fmt.Fprintf(&b, "\n- Number of lines: %d", len(strings.Split(text, "\n")))
	if strings.Contains(strings.ToLower(text), "error") {
		b.WriteString("\n- Contains error messages")
	}
	return b.String()
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// captureBuffer collects a child's output. Once detached it keeps accepting
// writes, so the child never sees a broken pipe, but drops them.
type captureBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	detached bool
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.detached {
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *captureBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Detach returns what was captured so far and discards all later writes.
func (b *captureBuffer) Detach() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detached = true
	out := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	return out
}
