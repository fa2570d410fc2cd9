package runner_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storyworks/analyzerd/internal/runner"
)

func TestExecRunner(t *testing.T) {
	t.Parallel()

	t.Run("Test run to completion", func(t *testing.T) {
		t.Parallel()

		handle, err := runner.ExecRunner{}.Start(context.Background(), runner.Spec{
			Argv: []string{"echo", "Hello, world!"},
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		out, err := io.ReadAll(handle.Stdout())
		if err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if string(out) != "Hello, world!\n" {
			t.Errorf("expected output: got '%s', want 'Hello, world!\\n'", out)
		}

		code, err := handle.Wait()
		if err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if code != 0 {
			t.Errorf("expected exit code: got '%d', want '0'", code)
		}
	})

	t.Run("Test non-zero exit", func(t *testing.T) {
		t.Parallel()

		handle, err := runner.ExecRunner{}.Start(context.Background(), runner.Spec{
			Argv: []string{"sh", "-c", "exit 3"},
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		io.Copy(io.Discard, handle.Stdout())
		io.Copy(io.Discard, handle.Stderr())

		code, err := handle.Wait()
		if err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if code != 3 {
			t.Errorf("expected exit code: got '%d', want '3'", code)
		}
	})

	t.Run("Test non-existent program", func(t *testing.T) {
		t.Parallel()

		_, err := runner.ExecRunner{}.Start(context.Background(), runner.Spec{
			Argv: []string{"non-existent-program"},
		})

		var spawnErr *runner.SpawnError
		if !errors.As(err, &spawnErr) {
			t.Fatalf("expected to receive SpawnError: got '%v'", err)
		}

		if spawnErr.Program != "non-existent-program" {
			t.Errorf(
				"expected program in error: got '%s', want 'non-existent-program'",
				spawnErr.Program,
			)
		}
	})

	t.Run("Test empty argv", func(t *testing.T) {
		t.Parallel()

		_, err := runner.ExecRunner{}.Start(context.Background(), runner.Spec{})

		var spawnErr *runner.SpawnError
		if !errors.As(err, &spawnErr) {
			t.Fatalf("expected to receive SpawnError: got '%v'", err)
		}
	})

	t.Run("Test environment is passed through", func(t *testing.T) {
		t.Parallel()

		handle, err := runner.ExecRunner{}.Start(context.Background(), runner.Spec{
			Argv: []string{"sh", "-c", "echo $ANALYZER_TEST_VAR"},
			Env:  []string{"PATH=/usr/bin:/bin", "ANALYZER_TEST_VAR=forty-two"},
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		out, _ := io.ReadAll(handle.Stdout())
		handle.Wait()

		if strings.TrimSpace(string(out)) != "forty-two" {
			t.Errorf("expected env var in output: got '%s', want 'forty-two'", out)
		}
	})

	t.Run("Test working directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()

		handle, err := runner.ExecRunner{}.Start(context.Background(), runner.Spec{
			Argv: []string{"pwd"},
			Dir:  dir,
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		out, _ := io.ReadAll(handle.Stdout())
		handle.Wait()

		got, err := filepath.EvalSymlinks(strings.TrimSpace(string(out)))
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		want, err := filepath.EvalSymlinks(dir)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got != want {
			t.Errorf("expected working directory: got '%s', want '%s'", got, want)
		}
	})

	t.Run("Test kill reports signalled exit", func(t *testing.T) {
		t.Parallel()

		handle, err := runner.ExecRunner{}.Start(context.Background(), runner.Spec{
			Argv: []string{"sleep", "30"},
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := handle.Kill(); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		io.Copy(io.Discard, handle.Stdout())
		io.Copy(io.Discard, handle.Stderr())

		code, err := handle.Wait()
		if err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		if code != -1 {
			t.Errorf("expected exit code: got '%d', want '-1'", code)
		}
	})
}
