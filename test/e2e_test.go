//go:build e2e

package e2e_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testEnv struct {
	binDir     string
	workerPath string
	cliPath    string
	serverCmd  *exec.Cmd
	port       string
}

// NOTE: Relative paths are used to determine the source locations to build
// the CLI and server binaries. Running this test from anywhere that breaks
// those relative paths will not work.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		binDir: t.TempDir(),
		port:   "18443",
	}

	serverPath := filepath.Join(env.binDir, "analyzerd")

	buildServer := exec.Command(
		"go",
		"build",
		"-o",
		serverPath,
		"../cmd/analyzerd",
	)

	if output, err := buildServer.CombinedOutput(); err != nil {
		t.Fatalf(
			"failed to build server binary: '%v' (output: '%s')",
			err,
			output,
		)
	}

	env.cliPath = filepath.Join(env.binDir, "analyzerctl")

	buildCLI := exec.Command("go", "build", "-o", env.cliPath, "../cmd/analyzerctl")

	if output, err := buildCLI.CombinedOutput(); err != nil {
		t.Fatalf("failed to build CLI binary: '%v' (output: '%s')", err, output)
	}

	// Stub analyzer worker: prints two progress lines and writes the JSON
	// artifact to the path given by --output-file.
	env.workerPath = filepath.Join(env.binDir, "stub-worker")
	stub := `#!/bin/sh
echo "Fetching repository metadata"
echo "Scoring repository"
printf '{"health_score":42}' > "$6"
`
	if err := os.WriteFile(env.workerPath, []byte(stub), 0o755); err != nil {
		t.Fatalf("failed to write stub worker: '%v'", err)
	}

	env.serverCmd = exec.Command(
		serverPath,
		"--port", env.port,
		"--worker-bin", env.workerPath,
	)
	env.serverCmd.Env = append(os.Environ(), "ANALYZERD_ARTIFACT_DIR="+t.TempDir())

	if err := env.serverCmd.Start(); err != nil {
		t.Fatalf("failed to exec server command: '%v'", err)
	}

	t.Cleanup(func() {
		if env.serverCmd.Process != nil {
			env.serverCmd.Process.Kill()
			env.serverCmd.Wait()
		}
	})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("failed to start server")
		case <-ticker.C:
			if _, _, err := env.runCLI(t, "kinds"); err == nil {
				return env
			}
		}
	}
}

func (env *testEnv) runCLI(
	t *testing.T,
	args ...string,
) (string, string, error) {
	t.Helper()

	cliArgs := []string{
		"--server-hostname", "localhost",
		"--server-port", env.port,
	}

	cliArgs = append(cliArgs, args...)

	cmd := exec.Command(env.cliPath, cliArgs...)

	var stdout strings.Builder
	var stderr strings.Builder

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

// A quick smoke test to verify the CLI can submit an analysis and stream
// its output back from the server.
func TestBasicE2E(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("Test kinds listing", func(t *testing.T) {
		stdout, _, err := env.runCLI(t, "kinds")
		if err != nil {
			t.Fatalf("expected kinds not to return error: got '%v'", err)
		}

		for _, kind := range []string{"quick", "full", "enhanced"} {
			if !strings.Contains(stdout, kind) {
				t.Errorf("expected kinds output to contain '%s': got '%s'", kind, stdout)
			}
		}
	})

	t.Run("Test analysis lifecycle", func(t *testing.T) {
		stdout, stderr, err := env.runCLI(
			t,
			"run", "acme/widgets",
			"--kind", "quick",
		)
		if err != nil {
			t.Fatalf(
				"expected run not to return error: got '%v' (stderr: '%s')",
				err,
				stderr,
			)
		}

		if !strings.Contains(stdout, "Fetching repository metadata") {
			t.Errorf("expected streamed progress: got '%s'", stdout)
		}

		if !strings.Contains(stdout, `"health_score": 42`) {
			t.Errorf("expected pretty-printed analysis: got '%s'", stdout)
		}
	})

	t.Run("Test invalid kind is rejected", func(t *testing.T) {
		_, stderr, err := env.runCLI(
			t,
			"run", "acme/widgets",
			"--kind", "exhaustive",
		)
		if err == nil {
			t.Error("expected run to return error")
		}

		if !strings.Contains(stderr, "unknown analysis kind") {
			t.Errorf("expected error message: got '%s'", stderr)
		}
	})
}
