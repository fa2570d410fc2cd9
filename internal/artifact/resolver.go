// Package artifact resolves a worker process' exit status and the artifact
// file it wrote to disk into the structured result of a job. It also serves
// precomputed artifacts from a read-only cache directory.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TimeoutSentinel is the marker line the analyzer worker prints to its
// output when it self-detects an internal timeout, before exiting non-zero.
// Its presence classifies a failure as timed-out rather than generic.
const TimeoutSentinel = "ANALYSIS TIMED OUT"

// Result is the structured outcome of a job. Exactly one Result is produced
// per job and it is always the final event.
type Result struct {
	Success    bool            `json:"success"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OutputFile string          `json:"output_file,omitempty"`
	Error      string          `json:"error,omitempty"`
	TimedOut   bool            `json:"timed_out,omitempty"`
}

// Capture holds the worker output collected while the job ran, used to
// build degraded results and failure messages.
type Capture struct {
	// Lines is every captured line, both streams, in arrival order.
	Lines []string

	// Errors is the stderr lines only, in arrival order.
	Errors []string
}

// SawTimeoutSentinel reports whether any captured line carries the worker's
// internal-timeout marker.
func (c Capture) SawTimeoutSentinel() bool {
	for _, line := range c.Lines {
		if strings.Contains(line, TimeoutSentinel) {
			return true
		}
	}

	return false
}

// failureMessage derives a human-readable error from the captured output,
// preferring the last non-empty stderr line.
func (c Capture) failureMessage(exitCode int) string {
	for i := len(c.Errors) - 1; i >= 0; i-- {
		if msg := strings.TrimSpace(c.Errors[i]); msg != "" {
			return msg
		}
	}

	for i := len(c.Lines) - 1; i >= 0; i-- {
		if msg := strings.TrimSpace(c.Lines[i]); msg != "" {
			return msg
		}
	}

	return fmt.Sprintf("worker exited with code %d", exitCode)
}

// rawOutput is the degraded-success payload used when the worker reported
// success but no parsable artifact was found.
type rawOutput struct {
	RawOutput string `json:"raw_output"`
}

// Resolve maps a worker's exit code and on-disk artifact to a Result.
//
// A zero exit code with a valid artifact is a success carrying the parsed
// artifact. A zero exit code with a missing or malformed artifact is a
// degraded success carrying the captured raw output; the worker's own exit
// code is the authoritative success signal, so a parse problem never fails
// the job. A non-zero exit is a failure, classified as timed-out if the
// worker printed its timeout sentinel.
func Resolve(exitCode int, outputFile string, captured Capture) Result {
	if exitCode != 0 {
		result := Result{
			Success:    false,
			OutputFile: outputFile,
			Error:      captured.failureMessage(exitCode),
		}

		if captured.SawTimeoutSentinel() {
			result.TimedOut = true
			result.Error = "analysis timed out: " + result.Error
		}

		return result
	}

	if payload, err := readArtifact(outputFile); err == nil {
		return Result{
			Success:    true,
			Payload:    payload,
			OutputFile: outputFile,
		}
	}

	// Degraded success: artifact missing or unparsable.
	payload, _ := json.Marshal(rawOutput{
		RawOutput: strings.Join(captured.Lines, "\n"),
	})

	return Result{
		Success:    true,
		Payload:    payload,
		OutputFile: outputFile,
	}
}

// readArtifact loads and validates the JSON artifact at path. The payload is
// opaque to the orchestrator; only well-formedness is checked.
func readArtifact(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("artifact %s is not valid JSON", path)
	}

	return json.RawMessage(data), nil
}
