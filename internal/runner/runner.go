// Package runner provides the capability to launch external worker
// processes. Arguments are always passed as a literal vector, never
// interpreted by a shell.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Spec describes a process to launch.
type Spec struct {
	// Argv is the literal argument vector. Argv[0] is the program.
	Argv []string

	// Dir is the working directory for the process. Empty means inherit.
	Dir string

	// Env is the complete environment for the process. Nil means inherit.
	Env []string
}

// SpawnError is returned when a process could not be started, e.g.
// executable not found, invalid working directory, permission denied. The
// process is never partially started.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CommandRunner starts processes. The concrete implementation is
// ExecRunner; tests substitute fakes.
type CommandRunner interface {
	Start(ctx context.Context, spec Spec) (ProcessHandle, error)
}

// ProcessHandle owns the OS-level resources of a running process: its pid
// and output streams. It is released by calling Wait on every exit path.
type ProcessHandle interface {
	PID() int
	Stdout() io.Reader
	Stderr() io.Reader
	Signal(sig os.Signal) error
	Kill() error

	// Wait reaps the process and returns its exit code. A process
	// terminated by a signal reports exit code -1. Wait must only be
	// called after both output streams have been fully consumed. It is
	// safe to call more than once.
	Wait() (int, error)
}

// ExecRunner is a CommandRunner backed by os/exec.
type ExecRunner struct{}

// Start launches the process described by spec. The process is killed if ctx
// is cancelled before it exits. On failure it returns a *SpawnError and no
// process is left running.
func (ExecRunner) Start(ctx context.Context, spec Spec) (ProcessHandle, error) {
	if len(spec.Argv) == 0 {
		return nil, &SpawnError{Err: errors.New("argv cannot be empty")}
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{
			Program: spec.Argv[0],
			Err:     fmt.Errorf("stdout pipe: %w", err),
		}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{
			Program: spec.Argv[0],
			Err:     fmt.Errorf("stderr pipe: %w", err),
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Program: spec.Argv[0], Err: err}
	}

	return &Handle{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// Handle is the ProcessHandle for a process started by ExecRunner.
type Handle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

// PID returns the OS process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Stdout returns the process' standard output stream.
func (h *Handle) Stdout() io.Reader {
	return h.stdout
}

// Stderr returns the process' standard error stream.
func (h *Handle) Stderr() io.Reader {
	return h.stderr
}

// Signal sends sig to the process.
func (h *Handle) Signal(sig os.Signal) error {
	return h.cmd.Process.Signal(sig)
}

// Kill forcefully terminates the process.
func (h *Handle) Kill() error {
	return h.cmd.Process.Kill()
}

// Wait implements ProcessHandle.
func (h *Handle) Wait() (int, error) {
	h.waitOnce.Do(func() {
		err := h.cmd.Wait()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			h.exitCode = h.cmd.ProcessState.ExitCode()
		case errors.As(err, &exitErr):
			// Non-zero exit is an outcome, not a wait failure.
			h.exitCode = exitErr.ExitCode()
		default:
			h.exitCode = -1
			h.waitErr = err
		}
	})

	return h.exitCode, h.waitErr
}
